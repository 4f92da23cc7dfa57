package backpack

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const DefaultWindowMs int64 = 5000

// Signer owns the account's ed25519 key. It is built once at startup and is
// safe for concurrent use since it is never mutated.
type Signer struct {
	key ed25519.PrivateKey
}

func NewSigner(encoded string) (*Signer, error) {
	key, err := ParsePrivateKey(encoded)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key}, nil
}

func NewSignerFromKey(key ed25519.PrivateKey) (*Signer, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return &Signer{key: key}, nil
}

// PublicKey returns the base64 public key registered with the exchange.
func (s *Signer) PublicKey() string {
	return base64.StdEncoding.EncodeToString(s.key.Public().(ed25519.PublicKey))
}

// Sign returns the base64 ed25519 signature of SigningString(...).
func (s *Signer) Sign(instruction string, params map[string]string, timestampMs, windowMs int64) string {
	payload := SigningString(instruction, params, timestampMs, windowMs)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, []byte(payload)))
}

// SigningString builds "instruction=..&k1=v1&k2=v2&timestamp=..&window=..".
// Keys (instruction included) are sorted, so map order never affects the result.
func SigningString(instruction string, params map[string]string, timestampMs, windowMs int64) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("instruction", instruction)
	if windowMs <= 0 {
		windowMs = DefaultWindowMs
	}
	var b strings.Builder
	b.WriteString(values.Encode())
	b.WriteString("&timestamp=")
	b.WriteString(strconv.FormatInt(timestampMs, 10))
	b.WriteString("&window=")
	b.WriteString(strconv.FormatInt(windowMs, 10))
	return b.String()
}

// ParsePrivateKey accepts a base64 32-byte seed (the exchange's export format),
// a base64 64-byte private key, or a PKCS#8 PEM block.
func ParsePrivateKey(encoded string) (ed25519.PrivateKey, error) {
	data := bytes.TrimSpace([]byte(encoded))
	if len(data) == 0 {
		return nil, errors.New("ed25519 private key is required")
	}
	if block, _ := pem.Decode(data); block != nil {
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pkcs8 private key: %w", err)
		}
		if k, ok := key.(ed25519.PrivateKey); ok {
			return k, nil
		}
		return nil, errors.New("unsupported private key type")
	}
	raw, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("ed25519 private key must be base64: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		key := ed25519.PrivateKey(raw)
		if !bytes.Equal(ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]), key) {
			return nil, errors.New("ed25519 private key public half does not match its seed")
		}
		return key, nil
	}
	return nil, fmt.Errorf("unsupported ed25519 private key length %d", len(raw))
}
