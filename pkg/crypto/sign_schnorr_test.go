package crypto

import (
	"testing"
)

func TestSchnorrSignature(t *testing.T) {
	InitCryptoParams("")
	cred := NewStationCredential()
	msg := []byte("ledger root")

	sig, err := cred.Sign(msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if err := sig.Verify(msg); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
	if err := sig.Verify([]byte("other root")); err == nil {
		t.Error("signature verified over the wrong message")
	}

	other := NewStationCredential()
	forged := &SchnorrSignature{Pk: other.PublicKey(), Sig: sig.Sig}
	if err := forged.Verify(msg); err == nil {
		t.Error("signature verified under the wrong key")
	}
}

func TestSchnorrSignature_Marshal(t *testing.T) {
	cred := NewStationCredential()
	sig, err := cred.Sign([]byte("root"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := sig.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	decoded, err := UnmarshalSchnorrSignature(data)
	if err != nil {
		t.Fatalf("UnmarshalSchnorrSignature failed: %v", err)
	}
	if err := decoded.Verify([]byte("root")); err != nil {
		t.Errorf("decoded signature rejected: %v", err)
	}
	if _, err := UnmarshalSchnorrSignature(data[:10]); err == nil {
		t.Error("expected error for truncated signature")
	}
}

func TestInitCryptoParams_Seeded(t *testing.T) {
	defer InitCryptoParams("")

	InitCryptoParams("station-7")
	a := NewStationCredential()
	InitCryptoParams("station-7")
	b := NewStationCredential()
	if !a.PublicKey().Equal(b.PublicKey()) {
		t.Error("seeded credentials differ")
	}
}
