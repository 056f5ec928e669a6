package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zypherlabs/skywarden/internal/ids"
)

func newTestIdentity(t *testing.T) (*DroneIdentity, string, *ProvisionResult) {
	t.Helper()
	dir := t.TempDir()
	id, err := Open(dir, ids.NewGenerator())
	require.NoError(t, err)
	res, err := id.Provision("org-test")
	require.NoError(t, err)
	return id, dir, res
}

func TestProvision_CreatesIdentity(t *testing.T) {
	id, dir, res := newTestIdentity(t)

	assert.True(t, id.IsProvisioned())
	droneID, err := id.DroneID()
	require.NoError(t, err)
	assert.Equal(t, res.DroneID, droneID)
	assert.Equal(t, "org-test", id.OrgID())
	assert.NotEmpty(t, id.Fingerprint())
	assert.NotEmpty(t, res.OperatorSecret)

	for _, name := range []string{"drone_id", "drone_key.pem", "drone_key_pub.pem", "hardware_fingerprint", "org_id", "operators.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "missing identity file %s", name)
	}
}

func TestProvision_PrivateKeyPermissions(t *testing.T) {
	_, dir, _ := newTestIdentity(t)

	info, err := os.Stat(filepath.Join(dir, "drone_key.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestProvision_RefusesOverwrite(t *testing.T) {
	id, dir, _ := newTestIdentity(t)

	keyBefore, err := os.ReadFile(filepath.Join(dir, "drone_key.pem"))
	require.NoError(t, err)

	_, err = id.Provision("org-other")
	assert.ErrorIs(t, err, ErrAlreadyProvisioned)

	// A fresh handle over the same directory must also refuse.
	id2, err := Open(dir, ids.NewGenerator())
	require.NoError(t, err)
	_, err = id2.Provision("org-other")
	assert.ErrorIs(t, err, ErrAlreadyProvisioned)

	keyAfter, err := os.ReadFile(filepath.Join(dir, "drone_key.pem"))
	require.NoError(t, err)
	assert.Equal(t, keyBefore, keyAfter, "key material must be untouched")
}

func TestOpen_ReloadsIdentity(t *testing.T) {
	id, dir, _ := newTestIdentity(t)
	droneID, err := id.DroneID()
	require.NoError(t, err)

	data := []byte("telemetry sample")
	sig, err := id.Sign(data)
	require.NoError(t, err)

	reloaded, err := Open(dir, ids.NewGenerator())
	require.NoError(t, err)
	require.True(t, reloaded.IsProvisioned())

	reloadedID, err := reloaded.DroneID()
	require.NoError(t, err)
	assert.Equal(t, droneID, reloadedID)
	assert.True(t, reloaded.Verify(data, sig), "reloaded key must verify signatures from the original")
}

func TestSign_NotProvisioned(t *testing.T) {
	id, err := Open(t.TempDir(), ids.NewGenerator())
	require.NoError(t, err)

	_, err = id.Sign([]byte("x"))
	assert.ErrorIs(t, err, ErrNotProvisioned)
	_, err = id.DroneID()
	assert.ErrorIs(t, err, ErrNotProvisioned)
}

func TestVerify_TamperedData(t *testing.T) {
	id, _, _ := newTestIdentity(t)

	sig, err := id.Sign([]byte("original"))
	require.NoError(t, err)
	assert.True(t, id.Verify([]byte("original"), sig))
	assert.False(t, id.Verify([]byte("tampered"), sig))
}

func TestVerifyOperator(t *testing.T) {
	id, _, res := newTestIdentity(t)

	assert.True(t, id.VerifyOperator(res.OperatorID, res.OperatorSecret))
	assert.False(t, id.VerifyOperator(res.OperatorID, "wrong-secret"))
	assert.False(t, id.VerifyOperator("ghost", res.OperatorSecret))
}

func TestAddOperator(t *testing.T) {
	id, dir, _ := newTestIdentity(t)

	require.NoError(t, id.AddOperator("op-2", "secret-2"))
	assert.True(t, id.VerifyOperator("op-2", "secret-2"))
	assert.False(t, id.VerifyOperator("op-2", "secret-1"))

	// New credentials survive a reload.
	reloaded, err := Open(dir, ids.NewGenerator())
	require.NoError(t, err)
	assert.True(t, reloaded.VerifyOperator("op-2", "secret-2"))
}
