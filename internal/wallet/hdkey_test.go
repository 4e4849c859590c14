package wallet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Klingon-tech/klingnet-dexstate/pkg/crypto"
)

// testSeed returns the seed of the BIP-39 "abandon ... about" vector with
// passphrase "TREZOR".
func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := SeedFromMnemonic(testMnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	return seed
}

func testMaster(t *testing.T) *HDKey {
	t.Helper()
	master, err := NewMasterKey(testSeed(t))
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	return master
}

func TestNewMasterKey(t *testing.T) {
	master := testMaster(t)
	if !master.IsPrivate() {
		t.Error("master key should be private")
	}
	if master.Depth() != 0 {
		t.Errorf("master depth = %d, want 0", master.Depth())
	}
	if len(master.PrivateKeyBytes()) != 32 {
		t.Errorf("private key length = %d, want 32", len(master.PrivateKeyBytes()))
	}
	if len(master.PublicKeyBytes()) != 33 {
		t.Errorf("public key length = %d, want 33", len(master.PublicKeyBytes()))
	}
}

func TestNewMasterKey_InvalidSeedLength(t *testing.T) {
	for _, n := range []int{0, 32, 128} {
		if _, err := NewMasterKey(make([]byte, n)); err == nil {
			t.Errorf("NewMasterKey(%d bytes) should fail", n)
		}
	}
}

func TestDerivePath_MatchesSequential(t *testing.T) {
	master := testMaster(t)
	c1, _ := master.DeriveChild(PurposeBIP44)
	c2, _ := c1.DeriveChild(CoinType)

	combined, err := master.DerivePath(PurposeBIP44, CoinType)
	if err != nil {
		t.Fatalf("DerivePath() error: %v", err)
	}
	if !bytes.Equal(c2.PrivateKeyBytes(), combined.PrivateKeyBytes()) {
		t.Error("DerivePath should equal sequential DeriveChild")
	}
}

func TestDeriveAccount(t *testing.T) {
	master := testMaster(t)
	a0, err := master.DeriveAccount(0)
	if err != nil {
		t.Fatalf("DeriveAccount(0) error: %v", err)
	}
	if a0.Depth() != 5 {
		t.Errorf("account key depth = %d, want 5", a0.Depth())
	}
	a1, err := master.DeriveAccount(1)
	if err != nil {
		t.Fatalf("DeriveAccount(1) error: %v", err)
	}
	if bytes.Equal(a0.PrivateKeyBytes(), a1.PrivateKeyBytes()) {
		t.Error("different accounts should produce different keys")
	}
	again, _ := testMaster(t).DeriveAccount(0)
	if !bytes.Equal(a0.PrivateKeyBytes(), again.PrivateKeyBytes()) {
		t.Error("account derivation should be deterministic")
	}
}

func TestAccountAddresses(t *testing.T) {
	key, _ := testMaster(t).DeriveAccount(0)

	addr := key.NativeAddress(crypto.TestnetPrefix)
	prefix, err := crypto.ValidateNativeAddress(addr)
	if err != nil {
		t.Fatalf("ValidateNativeAddress(%q) error: %v", addr, err)
	}
	if prefix != crypto.TestnetPrefix {
		t.Errorf("prefix = %d, want %d", prefix, crypto.TestnetPrefix)
	}
	if addr == key.NativeAddress(crypto.MainnetPrefix) {
		t.Error("networks should produce different addresses")
	}

	evm, err := key.EvmAddress()
	if err != nil {
		t.Fatalf("EvmAddress() error: %v", err)
	}
	if len(evm) != 42 || !strings.HasPrefix(evm, "0x") {
		t.Errorf("EvmAddress() = %q", evm)
	}
}

func TestNeuter_DeriveChild(t *testing.T) {
	master := testMaster(t)
	pub := master.Neuter()
	if pub.IsPrivate() || pub.PrivateKeyBytes() != nil {
		t.Error("neutered key should not hold a private key")
	}

	privChild, _ := master.DeriveChild(0)
	pubChild, err := pub.DeriveChild(0)
	if err != nil {
		t.Fatalf("DeriveChild from public key error: %v", err)
	}
	if !bytes.Equal(privChild.PublicKeyBytes(), pubChild.PublicKeyBytes()) {
		t.Error("public derivation should match private derivation")
	}
}

func TestPrivateKey(t *testing.T) {
	key, _ := testMaster(t).DeriveAccount(0)
	priv, err := key.PrivateKey()
	if err != nil {
		t.Fatalf("PrivateKey() error: %v", err)
	}
	hash := crypto.Hash([]byte("swap"))
	sig, err := priv.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.VerifySignature(hash[:], sig, key.PublicKeyBytes()) {
		t.Error("signature from derived key should verify")
	}

	if _, err := key.Neuter().PrivateKey(); err == nil {
		t.Error("PrivateKey() from public key should fail")
	}
}
