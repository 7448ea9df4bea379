package ledger

import (
	"crypto/sha256"
	"fmt"
	"time"

	"danfescan/pkg/danfe"
	"danfescan/pkg/serialization"

	"github.com/cbergoon/merkletree"
)

// Kind classifies a scanned value.
type Kind string

const (
	KindAccessKey Kind = "DANFE"
	KindProduct   Kind = "Product"
)

// KindOf classifies a decoded value: NF-e access keys are DANFEs, anything
// else is a product code.
func KindOf(value string) Kind {
	if danfe.IsAccessKey(value) {
		return KindAccessKey
	}
	return KindProduct
}

// Entry is one accepted scan.
type Entry struct {
	Seq       uint64
	Value     string
	Kind      Kind
	ScannedAt time.Time
}

// Bytes is the canonical encoding hashed into the ledger root.
func (e *Entry) Bytes() ([]byte, error) {
	s := serialization.NewSerializer()
	s.WriteUint64(e.Seq)
	s.WriteString(e.Value)
	s.WriteString(string(e.Kind))
	s.WriteInt64(e.ScannedAt.UnixNano())
	return s.Bytes()
}

// CalculateHash implements merkletree.Content.
func (e *Entry) CalculateHash() ([]byte, error) {
	b, err := e.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry %d: %w", e.Seq, err)
	}
	h := sha256.Sum256(b)
	return h[:], nil
}

// Equals implements merkletree.Content.
func (e *Entry) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(*Entry)
	if !ok {
		return false, fmt.Errorf("cannot compare entry with %T", other)
	}
	return e.Seq == o.Seq && e.Value == o.Value && e.Kind == o.Kind && e.ScannedAt.Equal(o.ScannedAt), nil
}

// Check validates the entry on its own.
func (e *Entry) Check() error {
	if e.Value == "" {
		return fmt.Errorf("entry %d has an empty value", e.Seq)
	}
	if want := KindOf(e.Value); e.Kind != want {
		return fmt.Errorf("entry %d is recorded as %s but is a %s", e.Seq, e.Kind, want)
	}
	return nil
}

func (e *Entry) String() string {
	return fmt.Sprintf("#%d %s %s %s", e.Seq, e.Kind, e.Value, e.ScannedAt.Format(time.RFC3339))
}
