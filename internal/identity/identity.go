// Package identity manages the device-bound cryptographic identity.
//
// Each drone has a unique Ed25519 keypair generated at provisioning
// time. The private key never leaves the device. Identity is bound to
// hardware via a fingerprint derived from stable device identifiers,
// making it non-transferable between units.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zypherlabs/skywarden/internal/ids"
)

// Identity state errors.
var (
	ErrNotProvisioned     = errors.New("drone not provisioned")
	ErrAlreadyProvisioned = errors.New("drone already provisioned")
)

// Identity directory layout.
const (
	droneIDFile     = "drone_id"
	privateKeyFile  = "drone_key.pem"
	publicKeyFile   = "drone_key_pub.pem"
	fingerprintFile = "hardware_fingerprint"
	orgIDFile       = "org_id"
	operatorsFile   = "operators.json"
)

const operatorSecretBytes = 32

// DroneIdentity holds the device keypair, hardware binding, and
// operator credential hashes. Loaded once at startup; read-only after.
type DroneIdentity struct {
	dir         string
	droneID     string
	orgID       string
	privateKey  ed25519.PrivateKey
	publicKey   ed25519.PublicKey
	fingerprint string
	operators   map[string]string // operator id -> hex sha256 of secret
	gen         *ids.Generator
}

// ProvisionResult is the output of a successful provisioning. The
// operator secret appears here exactly once and is never stored.
type ProvisionResult struct {
	DroneID             string `json:"drone_id"`
	OrgID               string `json:"org_id"`
	PublicKeyPEM        string `json:"public_key_pem"`
	HardwareFingerprint string `json:"hardware_fingerprint"`
	OperatorID          string `json:"operator_id"`
	OperatorSecret      string `json:"operator_secret"`
}

// Open loads identity material from dir if it exists. A missing
// identity is not an error; IsProvisioned reports the result.
func Open(dir string, gen *ids.Generator) (*DroneIdentity, error) {
	id := &DroneIdentity{
		dir:       dir,
		operators: make(map[string]string),
		gen:       gen,
	}
	if _, err := os.Stat(filepath.Join(dir, droneIDFile)); err == nil {
		if err := id.load(); err != nil {
			return nil, fmt.Errorf("load identity: %w", err)
		}
	}
	return id, nil
}

// IsProvisioned reports whether identity material exists.
func (d *DroneIdentity) IsProvisioned() bool {
	return d.droneID != ""
}

// DroneID returns the device identifier.
func (d *DroneIdentity) DroneID() (string, error) {
	if d.droneID == "" {
		return "", ErrNotProvisioned
	}
	return d.droneID, nil
}

// OrgID returns the organization the device is bound to.
func (d *DroneIdentity) OrgID() string { return d.orgID }

// Fingerprint returns the hardware fingerprint.
func (d *DroneIdentity) Fingerprint() string { return d.fingerprint }

// PublicKey returns the device public key, nil if not provisioned.
func (d *DroneIdentity) PublicKey() ed25519.PublicKey { return d.publicKey }

// Provision generates a new keypair, computes the hardware fingerprint,
// creates the initial operator credential, and persists everything.
// Refuses to overwrite an existing identity.
func (d *DroneIdentity) Provision(orgID string) (*ProvisionResult, error) {
	if d.IsProvisioned() {
		return nil, ErrAlreadyProvisioned
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	droneID := d.gen.New()
	fingerprint := computeFingerprint()

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	// Private key is owner-read/write only.
	if err := os.WriteFile(filepath.Join(d.dir, privateKeyFile), privPEM, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, publicKeyFile), pubPEM, 0o644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, droneIDFile), []byte(droneID), 0o644); err != nil {
		return nil, fmt.Errorf("write drone id: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, fingerprintFile), []byte(fingerprint), 0o644); err != nil {
		return nil, fmt.Errorf("write fingerprint: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, orgIDFile), []byte(orgID), 0o644); err != nil {
		return nil, fmt.Errorf("write org id: %w", err)
	}

	operatorID := d.gen.New()
	secretRaw := make([]byte, operatorSecretBytes)
	if _, err := rand.Read(secretRaw); err != nil {
		return nil, fmt.Errorf("generate operator secret: %w", err)
	}
	secret := hex.EncodeToString(secretRaw)

	d.droneID = droneID
	d.orgID = orgID
	d.privateKey = priv
	d.publicKey = pub
	d.fingerprint = fingerprint
	d.operators = map[string]string{operatorID: hashSecret(secret)}

	if err := d.saveOperators(); err != nil {
		return nil, err
	}

	return &ProvisionResult{
		DroneID:             droneID,
		OrgID:               orgID,
		PublicKeyPEM:        string(pubPEM),
		HardwareFingerprint: fingerprint,
		OperatorID:          operatorID,
		OperatorSecret:      secret,
	}, nil
}

// Sign signs data with the device private key.
func (d *DroneIdentity) Sign(data []byte) ([]byte, error) {
	if d.privateKey == nil {
		return nil, ErrNotProvisioned
	}
	return ed25519.Sign(d.privateKey, data), nil
}

// Verify verifies a signature against the device public key.
func (d *DroneIdentity) Verify(data, sig []byte) bool {
	if d.publicKey == nil {
		return false
	}
	return ed25519.Verify(d.publicKey, data, sig)
}

// VerifyOperator checks an operator's shared secret against the stored
// hash using a constant-time comparison.
func (d *DroneIdentity) VerifyOperator(operatorID, secret string) bool {
	stored, ok := d.operators[operatorID]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashSecret(secret)), []byte(stored)) == 1
}

// AddOperator registers a new operator credential.
func (d *DroneIdentity) AddOperator(operatorID, secret string) error {
	if !d.IsProvisioned() {
		return ErrNotProvisioned
	}
	d.operators[operatorID] = hashSecret(secret)
	return d.saveOperators()
}

func (d *DroneIdentity) load() error {
	raw, err := os.ReadFile(filepath.Join(d.dir, droneIDFile))
	if err != nil {
		return err
	}
	d.droneID = strings.TrimSpace(string(raw))

	keyPEM, err := os.ReadFile(filepath.Join(d.dir, privateKeyFile))
	if err != nil {
		return err
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return fmt.Errorf("invalid private key PEM")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return fmt.Errorf("private key is not Ed25519")
	}
	d.privateKey = priv
	d.publicKey = priv.Public().(ed25519.PublicKey)

	if raw, err := os.ReadFile(filepath.Join(d.dir, fingerprintFile)); err == nil {
		d.fingerprint = strings.TrimSpace(string(raw))
	}
	if raw, err := os.ReadFile(filepath.Join(d.dir, orgIDFile)); err == nil {
		d.orgID = strings.TrimSpace(string(raw))
	}
	if raw, err := os.ReadFile(filepath.Join(d.dir, operatorsFile)); err == nil {
		if err := json.Unmarshal(raw, &d.operators); err != nil {
			return fmt.Errorf("parse operators file: %w", err)
		}
	}
	return nil
}

func (d *DroneIdentity) saveOperators() error {
	b, err := json.MarshalIndent(d.operators, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal operators: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, operatorsFile), b, 0o600); err != nil {
		return fmt.Errorf("write operators file: %w", err)
	}
	return nil
}

func hashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// computeFingerprint derives a hardware fingerprint from the device
// serial (Jetson device tree), falling back to the machine id, plus the
// first non-loopback MAC address.
func computeFingerprint() string {
	var parts []string

	if raw, err := os.ReadFile("/proc/device-tree/serial-number"); err == nil {
		parts = append(parts, strings.Trim(strings.TrimSpace(string(raw)), "\x00"))
	} else if raw, err := os.ReadFile("/etc/machine-id"); err == nil {
		parts = append(parts, strings.TrimSpace(string(raw)))
	}

	if entries, err := os.ReadDir("/sys/class/net"); err == nil {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Name() != "lo" {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			raw, err := os.ReadFile(filepath.Join("/sys/class/net", name, "address"))
			if err != nil {
				continue
			}
			mac := strings.TrimSpace(string(raw))
			if mac != "" && mac != "00:00:00:00:00:00" {
				parts = append(parts, mac)
				break
			}
		}
	}

	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
