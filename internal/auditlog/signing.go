package auditlog

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

type Signer interface {
	Sign(data []byte) ([]byte, error)
}

type Verifier interface {
	Verify(data, signature []byte) bool
}

type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

func NewEd25519Signer(priv ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{priv: priv}
}

func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, data), nil
}

type Ed25519Verifier struct {
	pub ed25519.PublicKey
}

func NewEd25519Verifier(pub ed25519.PublicKey) *Ed25519Verifier {
	return &Ed25519Verifier{pub: pub}
}

func (v *Ed25519Verifier) Verify(data, signature []byte) bool {
	return ed25519.Verify(v.pub, data, signature)
}

// LoadEd25519PrivateKey accepts a file path or an inline base64 string.
func LoadEd25519PrivateKey(input string) (ed25519.PrivateKey, error) {
	data, err := loadKeyData(input)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid Ed25519 private key size: expected %d, got %d", ed25519.PrivateKeySize, len(data))
	}
	return ed25519.PrivateKey(data), nil
}

func LoadEd25519PublicKey(input string) (ed25519.PublicKey, error) {
	data, err := loadKeyData(input)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid Ed25519 public key size: expected %d, got %d", ed25519.PublicKeySize, len(data))
	}
	return ed25519.PublicKey(data), nil
}

func loadKeyData(input string) ([]byte, error) {
	if data, err := os.ReadFile(input); err == nil {
		input = string(bytes.TrimSpace(data))
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(input))
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 key: %w", err)
	}
	return decoded, nil
}

func GenerateEd25519KeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}
