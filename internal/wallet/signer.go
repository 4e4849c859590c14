package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-dexstate/pkg/crypto"
	"github.com/Klingon-tech/klingnet-dexstate/pkg/types"
)

// ClaimChecker answers whether an account has bound its EVM address.
type ClaimChecker interface {
	IsClaimed(ctx context.Context, address string) (bool, error)
}

// LocalSigner is a signer handle backed by a keystore-derived key.
type LocalSigner struct {
	address string
	key     *crypto.PrivateKey
	claims  ClaimChecker
}

var _ types.SignerHandle = (*LocalSigner)(nil)

// IsClaimed asks the chain for the account's binding state. Without a
// checker an account is reported unclaimed.
func (s *LocalSigner) IsClaimed(ctx context.Context) (bool, error) {
	if s.claims == nil {
		return false, nil
	}
	return s.claims.IsClaimed(ctx, s.address)
}

// Sign signs a 32-byte digest.
func (s *LocalSigner) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.key.Sign(digest)
}

// PublicKey returns the compressed public key.
func (s *LocalSigner) PublicKey() []byte {
	return s.key.PublicKey()
}

// Close wipes the private key.
func (s *LocalSigner) Close() {
	s.key.Zero()
}

// Signers unlocks a wallet and returns one signer per derived account, in
// derivation order. Balances start at zero until the first refresh.
func (ks *Keystore) Signers(name string, password []byte, claims ClaimChecker) ([]*types.Signer, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet: %w", err)
	}
	defer wipe(seed)

	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}

	out := make([]*types.Signer, 0, len(kf.Accounts))
	for _, acct := range kf.Accounts {
		hd, err := master.DeriveAccount(acct.Index)
		if err != nil {
			return nil, err
		}
		address := hd.NativeAddress(kf.Prefix)
		if acct.Address != "" && acct.Address != address {
			return nil, fmt.Errorf("account %d: address mismatch", acct.Index)
		}
		evm, err := hd.EvmAddress()
		if err != nil {
			return nil, err
		}
		key, err := hd.PrivateKey()
		if err != nil {
			return nil, err
		}
		out = append(out, &types.Signer{
			Address:    address,
			Name:       acct.Name,
			Balance:    new(big.Int),
			EvmAddress: evm,
			Handle:     &LocalSigner{address: address, key: key, claims: claims},
		})
	}
	return out, nil
}
