package crypto

import (
	"crypto/cipher"

	"danfescan/pkg/log"

	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/kyber/v3/util/random"
)

// Suite is the elliptic curve suite used to seal scan ledgers.
var Suite = suites.MustFind("Ed25519")

// RandomStream is the randomness source for key generation. It defaults to
// the suite's cryptographic source.
var RandomStream cipher.Stream = Suite.RandomStream()

// InitCryptoParams selects the randomness source. A non-empty seed makes
// station keys reproducible, which is only meant for tests and demos.
func InitCryptoParams(seed string) {
	if seed != "" {
		log.Debug("Using deterministic randomness seed: %s", seed)
		RandomStream = random.New(Suite.XOF([]byte(seed)))
	} else {
		log.Debug("Using random source")
		RandomStream = Suite.RandomStream()
	}
}
