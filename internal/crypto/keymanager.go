// Package crypto provides EIP-712 intent hashing and signing, signer
// recovery, relayer HMAC authentication, and encrypted key storage for
// intent signers.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultKDFIterations is the PBKDF2-HMAC-SHA256 work factor for new
	// keystore files.
	DefaultKDFIterations = 480_000

	saltLen        = 16
	aesKeyLen      = 32
	keystoreFormat = 2
)

// keystoreFile is the on-disk format for an encrypted signing key. Address
// is stored in the clear so a wrong password is detected before use.
type keystoreFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource tells LoadKey where an intent signer's key lives.
type KeySource struct {
	// RawPrivateKey is a hex-encoded key, with or without 0x. It wins over
	// KeystorePath when both are set.
	RawPrivateKey string
	KeystorePath  string
	Password      string
}

// SealKey encrypts key with password using PBKDF2 key derivation and
// AES-256-GCM. iterations <= 0 selects DefaultKDFIterations.
func SealKey(key *ecdsa.PrivateKey, password string, iterations int) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto/keystore: password must not be empty")
	}
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto/keystore: generating salt: %w", err)
	}
	gcm, err := keyCipher(password, salt, iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto/keystore: generating nonce: %w", err)
	}

	addr := ethcrypto.PubkeyToAddress(key.PublicKey)
	// The address doubles as associated data, binding it to the ciphertext.
	ciphertext := gcm.Seal(nil, nonce, ethcrypto.FromECDSA(key), addr.Bytes())

	return json.MarshalIndent(keystoreFile{
		Version:    keystoreFormat,
		Address:    addr.Hex(),
		Iterations: iterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, "", "  ")
}

// OpenKey decrypts a blob produced by SealKey.
func OpenKey(blob []byte, password string) (*ecdsa.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("crypto/keystore: password must not be empty")
	}

	var kf keystoreFile
	if err := json.Unmarshal(blob, &kf); err != nil {
		return nil, fmt.Errorf("crypto/keystore: parsing keystore: %w", err)
	}
	if kf.Version != keystoreFormat {
		return nil, fmt.Errorf("crypto/keystore: unsupported version %d", kf.Version)
	}
	if !common.IsHexAddress(kf.Address) {
		return nil, fmt.Errorf("crypto/keystore: invalid address %q", kf.Address)
	}

	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: decoding ciphertext: %w", err)
	}

	gcm, err := keyCipher(password, salt, kf.Iterations)
	if err != nil {
		return nil, err
	}
	addr := common.HexToAddress(kf.Address)
	plaintext, err := gcm.Open(nil, nonce, ciphertext, addr.Bytes())
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: decryption failed (wrong password?): %w", err)
	}

	key, err := ethcrypto.ToECDSA(plaintext)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: decoded key: %w", err)
	}
	if ethcrypto.PubkeyToAddress(key.PublicKey) != addr {
		return nil, errors.New("crypto/keystore: key does not match stored address")
	}
	return key, nil
}

// LoadKey resolves an intent signer's key, preferring a raw key over a
// keystore file.
func LoadKey(src KeySource) (*ecdsa.PrivateKey, error) {
	if src.RawPrivateKey != "" {
		key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(src.RawPrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("crypto/keystore: raw key: %w", err)
		}
		return key, nil
	}
	if src.KeystorePath != "" {
		data, err := os.ReadFile(src.KeystorePath)
		if err != nil {
			return nil, fmt.Errorf("crypto/keystore: reading keystore: %w", err)
		}
		return OpenKey(data, src.Password)
	}
	return nil, errors.New("crypto/keystore: no key source configured (set RawPrivateKey or KeystorePath)")
}

func keyCipher(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("crypto/keystore: invalid iteration count %d", iterations)
	}
	derived := pbkdf2.Key([]byte(password), salt, iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto/keystore: creating GCM: %w", err)
	}
	return gcm, nil
}
