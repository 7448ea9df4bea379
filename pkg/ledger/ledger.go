// Package ledger keeps the append-only record of accepted scans and seals
// it with a signed merkle root.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"danfescan/pkg/concurrency"
	"danfescan/pkg/crypto"
	"danfescan/pkg/log"
	"danfescan/pkg/serialization"

	"github.com/cbergoon/merkletree"
)

var (
	ErrDuplicate = errors.New("ledger: value already scanned")
	ErrEmpty     = errors.New("ledger: no entries")
)

// Ledger mimics an append-only log. It is safe for concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	entries []*Entry
	seen    map[string]uint64
}

func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]uint64)}
}

// Append records a scan. A value already on the ledger is rejected with
// ErrDuplicate and the existing entry is returned.
func (l *Ledger) Append(value string, at time.Time) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if seq, ok := l.seen[value]; ok {
		return l.entries[seq-1], fmt.Errorf("%w: %q is entry %d", ErrDuplicate, value, seq)
	}
	e := &Entry{
		Seq:       uint64(len(l.entries) + 1),
		Value:     value,
		Kind:      KindOf(value),
		ScannedAt: at,
	}
	l.entries = append(l.entries, e)
	l.seen[value] = e.Seq
	return e, nil
}

// Contains reports whether value was already scanned.
func (l *Ledger) Contains(value string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[value]
	return ok
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns the entries in append order.
func (l *Ledger) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Entry(nil), l.entries...)
}

// Root returns the merkle root over all entries.
func (l *Ledger) Root() ([]byte, error) {
	tree, err := buildTree(l.Entries())
	if err != nil {
		return nil, err
	}
	return tree.MerkleRoot(), nil
}

// Verify checks every entry in parallel, the sequence numbering and the
// merkle tree built over the entries.
func (l *Ledger) Verify(ctx context.Context, workers int) error {
	entries := l.Entries()
	log.Debug("Verifying %d ledger entries", len(entries))

	err := concurrency.ForEach(ctx, workers, entries, func(i int, e *Entry) error {
		if e.Seq != uint64(i+1) {
			return fmt.Errorf("entry at position %d has sequence %d", i+1, e.Seq)
		}
		return e.Check()
	})
	if err != nil {
		return fmt.Errorf("failed to verify ledger entry: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	tree, err := buildTree(entries)
	if err != nil {
		return err
	}
	ok, err := tree.VerifyTree()
	if err != nil {
		return fmt.Errorf("failed to verify merkle tree: %w", err)
	}
	if !ok {
		return errors.New("merkle tree does not match its entries")
	}
	return nil
}

// Seal is a station's signature over the ledger root at a given length.
type Seal struct {
	Root  []byte
	Count uint64
	Sig   *crypto.SchnorrSignature
}

// SealPayload is the message a station signs.
func SealPayload(root []byte, count uint64) ([]byte, error) {
	s := serialization.NewSerializer()
	s.WriteUint64(count)
	s.WriteByteSlice(root)
	return s.Bytes()
}

// Seal signs the current root with the station credential.
func (l *Ledger) Seal(cred *crypto.StationCredential) (*Seal, error) {
	entries := l.Entries()
	tree, err := buildTree(entries)
	if err != nil {
		return nil, err
	}
	root := tree.MerkleRoot()
	msg, err := SealPayload(root, uint64(len(entries)))
	if err != nil {
		return nil, fmt.Errorf("failed to encode seal payload: %w", err)
	}
	sig, err := cred.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to sign ledger root: %w", err)
	}
	return &Seal{Root: root, Count: uint64(len(entries)), Sig: sig}, nil
}

// VerifySeal checks that seal signs the root of the first seal.Count
// entries. Entries appended after sealing do not invalidate it.
func (l *Ledger) VerifySeal(seal *Seal) error {
	entries := l.Entries()
	if seal.Count == 0 || seal.Count > uint64(len(entries)) {
		return fmt.Errorf("seal covers %d entries, ledger has %d", seal.Count, len(entries))
	}
	tree, err := buildTree(entries[:seal.Count])
	if err != nil {
		return err
	}
	root := tree.MerkleRoot()
	if string(root) != string(seal.Root) {
		return errors.New("sealed root does not match the ledger")
	}
	msg, err := SealPayload(root, seal.Count)
	if err != nil {
		return fmt.Errorf("failed to encode seal payload: %w", err)
	}
	if err := seal.Sig.Verify(msg); err != nil {
		return fmt.Errorf("failed to verify seal signature: %w", err)
	}
	return nil
}

func buildTree(entries []*Entry) (*merkletree.MerkleTree, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	contents := make([]merkletree.Content, len(entries))
	for i, e := range entries {
		contents[i] = e
	}
	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, fmt.Errorf("failed to build merkle tree: %w", err)
	}
	return tree, nil
}
