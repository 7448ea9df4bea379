package crypto

import (
	"fmt"

	"go.dedis.ch/kyber/v3"
)

// StationCredential is the key pair a scanning station signs its ledger
// with.
type StationCredential struct {
	private kyber.Scalar
	public  kyber.Point
}

func NewStationCredential() *StationCredential {
	private := Suite.Scalar().Pick(RandomStream)
	public := Suite.Point().Mul(private, nil)
	return &StationCredential{private: private, public: public}
}

func (c *StationCredential) PrivateKey() kyber.Scalar { return c.private }
func (c *StationCredential) PublicKey() kyber.Point   { return c.public }

// Sign produces a Schnorr signature over msg.
func (c *StationCredential) Sign(msg []byte) (*SchnorrSignature, error) {
	return NewSchnorrSignature(c.private, c.public, msg)
}

func (c *StationCredential) String() string {
	return fmt.Sprintf("StationCredential{Pk: %s}", c.public)
}
