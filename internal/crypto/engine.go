// Package crypto provides the cryptographic operations bound to one
// device identity: evidence signing, operator command verification,
// authenticated encryption of blobs, and content hashing.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/zypherlabs/skywarden/internal/identity"
)

const gcmNonceSize = 12

// Command rejection reasons returned by VerifyCommand.
const (
	ReasonOK               = "ok"
	ReasonInvalidOperator  = "invalid_operator"
	ReasonInvalidTimestamp = "invalid_timestamp"
	ReasonCommandExpired   = "command_expired"
	ReasonInvalidMAC       = "invalid_mac"
)

// Engine performs cryptographic operations with the drone identity.
// Stateless over identity material loaded at construction.
type Engine struct {
	identity *identity.DroneIdentity
	now      func() time.Time
}

// NewEngine returns an Engine bound to id.
func NewEngine(id *identity.DroneIdentity) *Engine {
	return &Engine{identity: id, now: time.Now}
}

// SignData signs data and returns a base64-encoded signature. Fails
// with identity.ErrNotProvisioned if no identity exists.
func (e *Engine) SignData(data []byte) (string, error) {
	raw, err := e.identity.Sign(data)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// VerifySignature verifies a base64-encoded signature over data.
func (e *Engine) VerifySignature(data []byte, signatureB64 string) bool {
	raw, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	return e.identity.Verify(data, raw)
}

// VerifyCommand verifies an inbound operator command:
//
//  1. the operator credential is valid,
//  2. the payload's embedded timestamp is within maxAge of now, and
//  3. an HMAC-SHA256 of the canonical payload encoding, keyed with the
//     operator's shared secret, matches providedMAC.
//
// All three must pass; the reason names the first failing check.
func (e *Engine) VerifyCommand(payload map[string]any, operatorID, secret, providedMAC string, maxAge time.Duration) (bool, string) {
	if !e.identity.VerifyOperator(operatorID, secret) {
		return false, ReasonInvalidOperator
	}

	ts, _ := payload["timestamp"].(string)
	cmdTime, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		cmdTime, err = time.Parse(time.RFC3339, ts)
	}
	if err != nil {
		return false, ReasonInvalidTimestamp
	}
	age := e.now().Sub(cmdTime)
	if age < 0 {
		age = -age
	}
	if age > maxAge {
		return false, fmt.Sprintf("%s (age=%.1fs)", ReasonCommandExpired, age.Seconds())
	}

	expected := ComputeMAC(payload, secret)
	if !hmac.Equal([]byte(expected), []byte(providedMAC)) {
		return false, ReasonInvalidMAC
	}

	return true, ReasonOK
}

// ComputeMAC returns the hex HMAC-SHA256 of the canonical (key-sorted
// JSON) encoding of payload. Senders must compute theirs identically.
func ComputeMAC(payload map[string]any, secret string) string {
	canonical, err := json.Marshal(payload)
	if err != nil {
		canonical = []byte("{}")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

// Encrypt encrypts plaintext with AES-256-GCM. If key is nil a random
// key is generated and returned. The nonce is fresh per call and
// prefixed to the ciphertext; it travels with the blob.
func Encrypt(plaintext, key []byte) (ciphertext, usedKey []byte, err error) {
	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, nil, fmt.Errorf("generate key: %w", err)
		}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), key, nil
}

// Decrypt decrypts an AES-256-GCM blob produced by Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	if len(ciphertext) < gcmNonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm.Open(nil, ciphertext[:gcmNonceSize], ciphertext[gcmNonceSize:], nil)
}

// HashBytes returns the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashFile returns the hex SHA-256 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
