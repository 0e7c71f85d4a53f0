package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNotConnected is returned when an operation needs a wallet and none is
// connected.
var ErrNotConnected = errors.New("no wallet connected")

// Wallet holds a secp256k1 private key and its derived Ethereum address.
type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  []byte         // 33-byte compressed public key
	Address    common.Address // EIP-55 checksummed when printed with Hex()
	KeyHex     string         // 64 hex chars, no 0x prefix
}

// Load creates a wallet from a hex-encoded private key, with or without 0x.
func Load(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("no wallet key provided")
	}

	privKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}

	w := fromKey(privKey)
	log.Printf("[wallet] Loaded key, address: %s", w.Address.Hex())
	return w, nil
}

// Generate creates a new random wallet.
func Generate() (*Wallet, error) {
	privKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return fromKey(privKey), nil
}

func fromKey(privKey *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		PrivateKey: privKey,
		PublicKey:  crypto.CompressPubkey(&privKey.PublicKey),
		Address:    crypto.PubkeyToAddress(privKey.PublicKey),
		KeyHex:     hex.EncodeToString(crypto.FromECDSA(privKey)),
	}
}

// Account returns the wallet address. It lets a Wallet act as a chain signer.
func (w *Wallet) Account() common.Address {
	return w.Address
}

// SignTx signs tx with the latest signer for chainID.
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	return signed, nil
}

// SignMessage signs msg the way personal_sign does: the Keccak256 hash of
// the EIP-191 prefixed text, with V set to 27 or 28. Anyone can check the
// result against the address with VerifyMessage.
func (w *Wallet) SignMessage(msg []byte) ([]byte, error) {
	var hash [32]byte
	copy(hash[:], accounts.TextHash(msg))
	sig, err := w.SignHash(hash)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignHash signs a pre-computed 32-byte hash. V is 0 or 1.
func (w *Wallet) SignHash(hash [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], w.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("sign hash: %w", err)
	}
	return sig, nil
}

// VerifyMessage reports whether sig is a personal_sign signature of msg by
// addr. V may be 0/1 or 27/28.
func VerifyMessage(addr common.Address, msg, sig []byte) bool {
	if len(sig) != crypto.SignatureLength {
		return false
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(msg), normalized)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == addr
}
