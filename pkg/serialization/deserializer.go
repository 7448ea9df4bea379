package serialization

import (
	"bytes"
	"encoding/binary"
	"io"

	"go.dedis.ch/kyber/v3"
)

// Deserializer reads what a Serializer wrote, in the same order. The first
// error sticks and is returned by Err.
type Deserializer struct {
	r   *bytes.Reader
	err error
}

func NewDeserializer(data []byte) *Deserializer {
	return &Deserializer{r: bytes.NewReader(data)}
}

func (d *Deserializer) Read(p []byte) {
	if d.err != nil {
		return
	}
	_, d.err = io.ReadFull(d.r, p)
}

func (d *Deserializer) ReadUint64() uint64 {
	if d.err != nil {
		return 0
	}
	var u uint64
	d.err = binary.Read(d.r, binary.BigEndian, &u)
	return u
}

func (d *Deserializer) ReadInt64() int64 {
	return int64(d.ReadUint64())
}

func (d *Deserializer) ReadKyber(obj ...kyber.Marshaling) {
	if d.err != nil {
		return
	}
	for _, o := range obj {
		_, d.err = o.UnmarshalFrom(d.r)
		if d.err != nil {
			return
		}
	}
}

// ReadByteSlice reads a length-prefixed byte slice.
func (d *Deserializer) ReadByteSlice() []byte {
	if d.err != nil {
		return nil
	}
	var length uint32
	d.err = binary.Read(d.r, binary.BigEndian, &length)
	if d.err != nil {
		return nil
	}
	if int64(length) > int64(d.r.Len()) {
		d.err = io.ErrUnexpectedEOF
		return nil
	}
	buf := make([]byte, length)
	d.Read(buf)
	return buf
}

// ReadString reads a length-prefixed string.
func (d *Deserializer) ReadString() string {
	return string(d.ReadByteSlice())
}

// Remaining reports the number of unread bytes.
func (d *Deserializer) Remaining() int {
	return d.r.Len()
}

func (d *Deserializer) Err() error {
	return d.err
}
