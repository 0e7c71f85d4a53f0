package wallet

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// First default account of a local hardhat node.
const hardhatKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestLoad_KnownVector(t *testing.T) {
	w, err := Load(hardhatKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	if w.Address.Hex() != want {
		t.Errorf("address = %s, want %s", w.Address.Hex(), want)
	}
}

func TestLoad_PrefixAndWhitespace(t *testing.T) {
	w, err := Load("  0x" + hardhatKey + "\n")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if w.KeyHex != hardhatKey {
		t.Errorf("KeyHex = %s, want %s", w.KeyHex, hardhatKey)
	}
}

func TestLoad_CompressedPubKey(t *testing.T) {
	w, err := Load(hardhatKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(w.PublicKey) != 33 {
		t.Errorf("pubkey length = %d, want 33 (compressed)", len(w.PublicKey))
	}
}

func TestGenerate(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if w.Address == (common.Address{}) {
		t.Error("generated wallet has zero address")
	}
	if len(w.KeyHex) != 64 {
		t.Errorf("KeyHex length = %d, want 64", len(w.KeyHex))
	}
	if w.PrivateKey == nil {
		t.Error("generated wallet has nil private key")
	}
	if w.Account() != w.Address {
		t.Error("Account() differs from Address")
	}
}

func TestGenerate_Unique(t *testing.T) {
	w1, _ := Generate()
	w2, _ := Generate()
	if w1.Address == w2.Address {
		t.Error("two generated wallets have the same address")
	}
}

func TestSignMessage_Verify(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	msg := []byte("stakeboard login 42")
	sig, err := w.SignMessage(msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Errorf("V = %d, want 27 or 28", v)
	}
	if !VerifyMessage(w.Address, msg, sig) {
		t.Error("signature did not verify")
	}
	if sig[64] < 27 {
		t.Error("VerifyMessage modified the caller's signature")
	}

	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	if !VerifyMessage(w.Address, msg, raw) {
		t.Error("signature with V in {0,1} did not verify")
	}

	if VerifyMessage(w.Address, []byte("other message"), sig) {
		t.Error("signature verified for a different message")
	}
	other, _ := Generate()
	if VerifyMessage(other.Address, msg, sig) {
		t.Error("signature verified for a different address")
	}
	if VerifyMessage(w.Address, msg, sig[:10]) {
		t.Error("truncated signature verified")
	}
}

func TestSignMessage_Deterministic(t *testing.T) {
	w, err := Load(hardhatKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a, _ := w.SignMessage([]byte("hello"))
	b, _ := w.SignMessage([]byte("hello"))
	if !bytes.Equal(a, b) {
		t.Error("RFC 6979 signatures differ for the same message")
	}
}

func TestSignTx(t *testing.T) {
	w, err := Load(hardhatKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	chainID := big.NewInt(31337)
	to := common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(0),
	})
	signed, err := w.SignTx(tx, chainID)
	if err != nil {
		t.Fatalf("SignTx: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if from != w.Address {
		t.Errorf("sender = %s, want %s", from.Hex(), w.Address.Hex())
	}
}

func TestLoad_Roundtrip(t *testing.T) {
	w1, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	w2, err := Load(w1.KeyHex)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if w1.Address != w2.Address {
		t.Errorf("addresses don't match after roundtrip: %s != %s", w1.Address.Hex(), w2.Address.Hex())
	}
}

func TestLoad_EmptyKey(t *testing.T) {
	for _, in := range []string{"", "   ", "0x"} {
		if _, err := Load(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestLoad_InvalidKey(t *testing.T) {
	for _, in := range []string{"notahexkey", "abcd", hardhatKey + "00"} {
		if _, err := Load(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}
