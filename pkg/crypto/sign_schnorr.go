package crypto

import (
	"fmt"

	"danfescan/pkg/serialization"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
)

type SchnorrSignature struct {
	Pk  kyber.Point
	Sig []byte
}

// NewSchnorrSignature creates a new Schnorr signature for the specified message using the given secret and public keys.
func NewSchnorrSignature(sk kyber.Scalar, pk kyber.Point, msg []byte) (*SchnorrSignature, error) {
	sig, err := schnorr.Sign(Suite, sk, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return &SchnorrSignature{Pk: pk, Sig: sig}, nil
}

// Verify validates a Schnorr signature over a message.
func (s *SchnorrSignature) Verify(msg []byte) error {
	return schnorr.Verify(Suite, s.Pk, msg, s.Sig)
}

// MarshalBinary encodes the public key followed by the signature.
func (s *SchnorrSignature) MarshalBinary() ([]byte, error) {
	w := serialization.NewSerializer()
	w.WriteKyber(s.Pk)
	w.WriteByteSlice(s.Sig)
	return w.Bytes()
}

// UnmarshalSchnorrSignature decodes what MarshalBinary produced.
func UnmarshalSchnorrSignature(data []byte) (*SchnorrSignature, error) {
	r := serialization.NewDeserializer(data)
	pk := Suite.Point()
	r.ReadKyber(pk)
	sig := r.ReadByteSlice()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	return &SchnorrSignature{Pk: pk, Sig: sig}, nil
}
