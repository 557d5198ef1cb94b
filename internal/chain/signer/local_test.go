package signer

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const testKeyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce9c46f30d7d21715b23b1d"

func clearKeyEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvPrivateKey, EnvPrivateKeyFile, EnvKeystorePath, EnvKeystorePassword, EnvKeystorePasswordFile} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewLocalSignerFromHexKey(t *testing.T) {
	s, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	want := "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"
	if s.Address().Hex() != want {
		t.Fatalf("address = %s, want %s", s.Address().Hex(), want)
	}
}

func TestNewLocalSignerAcceptsPrefixedKey(t *testing.T) {
	s, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: "0x" + testKeyHex})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected a derived address")
	}
}

func TestNewLocalSignerFromFile(t *testing.T) {
	clearKeyEnv(t)
	path := filepath.Join(t.TempDir(), "key.hex")
	if err := os.WriteFile(path, []byte(testKeyHex+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	t.Setenv(EnvPrivateKeyFile, path)

	s, err := NewLocalSignerFromEnv(KeySourceFile)
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if !strings.EqualFold(s.Address().Hex(), "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1") {
		t.Fatalf("address = %s", s.Address().Hex())
	}
}

func TestNewLocalSignerMissingKey(t *testing.T) {
	clearKeyEnv(t)
	if _, err := NewLocalSignerFromEnv(KeySourceAuto); err == nil {
		t.Fatal("expected error without any key material")
	}
}

func TestNewLocalSignerRejectsUnknownSource(t *testing.T) {
	clearKeyEnv(t)
	if _, err := NewLocalSignerFromEnv("vault"); err == nil {
		t.Fatal("expected error for unsupported key source")
	}
}

func TestSignTx(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	s := NewLocalSignerFromKey(key)
	chainID := big.NewInt(8453)
	to := s.Address()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(2_000_000_000),
		Gas:       21_000,
		To:        &to,
		Value:     big.NewInt(0),
	})
	signed, err := s.SignTx(chainID, tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != s.Address() {
		t.Fatalf("sender = %s, want %s", sender, s.Address())
	}
}

func TestSignTypedDataShape(t *testing.T) {
	key, _ := crypto.HexToECDSA(testKeyHex)
	s := NewLocalSignerFromKey(key)
	data := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Ping": []apitypes.Type{
				{Name: "value", Type: "uint256"},
			},
		},
		PrimaryType: "Ping",
		Domain: apitypes.TypedDataDomain{
			Name:    "Test",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(8453),
		},
		Message: apitypes.TypedDataMessage{
			"value": math.NewHexOrDecimal256(7),
		},
	}
	sig, err := s.SignTypedData(data)
	if err != nil {
		t.Fatalf("SignTypedData failed: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("v = %d, want 27 or 28", sig[64])
	}
}
