package wallet

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for new keystores. Stored per file so they can change.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var ErrBadPassphrase = errors.New("keystore: wrong passphrase or corrupt file")

type keystoreFile struct {
	Version int    `json:"version"`
	Address string `json:"address"`
	N       int    `json:"n"`
	R       int    `json:"r"`
	P       int    `json:"p"`
	Salt    string `json:"salt"`
	Nonce   string `json:"nonce"`
	Box     string `json:"box"`
}

// SaveKeystore encrypts the keypair seed with a passphrase-derived key.
func SaveKeystore(path string, kp *Keypair, passphrase string) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("keystore salt: %w", err)
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("keystore nonce: %w", err)
	}
	key, err := deriveKey(passphrase, salt, scryptN, scryptR, scryptP)
	if err != nil {
		return err
	}
	box := secretbox.Seal(nil, kp.Seed(), &nonce, key)

	f := keystoreFile{
		Version: 1,
		Address: kp.PublicKey(),
		N:       scryptN,
		R:       scryptR,
		P:       scryptP,
		Salt:    base64.StdEncoding.EncodeToString(salt),
		Nonce:   base64.StdEncoding.EncodeToString(nonce[:]),
		Box:     base64.StdEncoding.EncodeToString(box),
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode keystore: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create keystore dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadKeystore decrypts a keystore written by SaveKeystore.
func LoadKeystore(path, passphrase string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	var f keystoreFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode keystore: %w", err)
	}
	if f.Version != 1 {
		return nil, fmt.Errorf("unsupported keystore version %d", f.Version)
	}
	salt, err1 := base64.StdEncoding.DecodeString(f.Salt)
	nonceBytes, err2 := base64.StdEncoding.DecodeString(f.Nonce)
	box, err3 := base64.StdEncoding.DecodeString(f.Box)
	if err := errors.Join(err1, err2, err3); err != nil || len(nonceBytes) != 24 {
		return nil, ErrBadPassphrase
	}
	var nonce [24]byte
	copy(nonce[:], nonceBytes)

	key, err := deriveKey(passphrase, salt, f.N, f.R, f.P)
	if err != nil {
		return nil, err
	}
	seed, ok := secretbox.Open(nil, box, &nonce, key)
	if !ok {
		return nil, ErrBadPassphrase
	}
	kp, err := FromSeed(seed)
	if err != nil {
		return nil, err
	}
	if f.Address != "" && kp.PublicKey() != f.Address {
		return nil, ErrBadPassphrase
	}
	return kp, nil
}

func deriveKey(passphrase string, salt []byte, n, r, p int) (*[32]byte, error) {
	k, err := scrypt.Key([]byte(passphrase), salt, n, r, p, 32)
	if err != nil {
		return nil, fmt.Errorf("derive keystore key: %w", err)
	}
	var key [32]byte
	copy(key[:], k)
	return &key, nil
}
