package audit

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zypherlabs/skywarden/internal/crypto"
	"github.com/zypherlabs/skywarden/internal/identity"
	"github.com/zypherlabs/skywarden/internal/ids"
	"github.com/zypherlabs/skywarden/internal/model"
	"github.com/zypherlabs/skywarden/internal/store"
)

func newTestLogger(t *testing.T) (*Logger, *store.Store, *crypto.Engine) {
	t.Helper()
	gen := ids.NewGenerator()
	id, err := identity.Open(t.TempDir(), gen)
	require.NoError(t, err)
	_, err = id.Provision("org-test")
	require.NoError(t, err)
	engine := crypto.NewEngine(id)

	st, err := store.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return NewLogger(st, engine, "drone-1", gen, zap.NewNop()), st, engine
}

func TestLog_ChainsEntries(t *testing.T) {
	l, st, _ := newTestLogger(t)

	first, err := l.Log("mission_start", map[string]any{"mission_id": "m-1"})
	require.NoError(t, err)
	assert.Empty(t, first.PrevHash, "genesis entry has no predecessor")

	second, err := l.Log("detection", map[string]any{"class": "person"})
	require.NoError(t, err)
	assert.Equal(t, first.ContentHash(), second.PrevHash)

	entries, err := st.AuditEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "drone-1", entries[0].Actor)
}

func TestVerifyChain_Intact(t *testing.T) {
	l, _, _ := newTestLogger(t)

	const n = 25
	for i := 0; i < n; i++ {
		_, err := l.Log("detection", map[string]any{"seq": i})
		require.NoError(t, err)
	}

	ok, count, err := l.VerifyChain()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, n, count)
}

func TestVerifyChain_Empty(t *testing.T) {
	l, _, _ := newTestLogger(t)

	ok, count, err := l.VerifyChain()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, count)
}

// Mutating any single field of any entry must break verification at
// that entry's 1-based position.
func TestVerifyEntries_TamperDetection(t *testing.T) {
	l, st, engine := newTestLogger(t)
	for i := 0; i < 5; i++ {
		_, err := l.Log("detection", map[string]any{"seq": i})
		require.NoError(t, err)
	}

	mutations := map[string]func(e *model.AuditEntry){
		"action":    func(e *model.AuditEntry) { e.Action = "mission_start" },
		"actor":     func(e *model.AuditEntry) { e.Actor = "intruder" },
		"timestamp": func(e *model.AuditEntry) { e.Timestamp = model.Now() },
		"details":   func(e *model.AuditEntry) { e.Details["seq"] = 99 },
		"prev_hash": func(e *model.AuditEntry) { e.PrevHash = "0000" },
		"signature": func(e *model.AuditEntry) { e.Signature = "dGFtcGVyZWQ=" },
	}

	for field, mutate := range mutations {
		for target := 0; target < 5; target++ {
			t.Run(fmt.Sprintf("%s_entry%d", field, target+1), func(t *testing.T) {
				entries, err := st.AuditEntries()
				require.NoError(t, err)

				mutate(entries[target])
				ok, k := VerifyEntries(entries, engine)
				assert.False(t, ok)
				assert.Equal(t, target+1, k, "break must surface at the mutated entry")
			})
		}
	}
}

func TestVerifyEntries_DeletedEntry(t *testing.T) {
	l, st, engine := newTestLogger(t)
	for i := 0; i < 4; i++ {
		_, err := l.Log("detection", map[string]any{"seq": i})
		require.NoError(t, err)
	}

	entries, err := st.AuditEntries()
	require.NoError(t, err)

	truncated := append([]*model.AuditEntry{}, entries[:1]...)
	truncated = append(truncated, entries[2:]...)
	ok, k := VerifyEntries(truncated, engine)
	assert.False(t, ok)
	assert.Equal(t, 2, k, "chain breaks where the gap appears")
}

func TestVerifyEntries_Reordered(t *testing.T) {
	l, st, engine := newTestLogger(t)
	for i := 0; i < 3; i++ {
		_, err := l.Log("detection", map[string]any{"seq": i})
		require.NoError(t, err)
	}

	entries, err := st.AuditEntries()
	require.NoError(t, err)
	entries[1], entries[2] = entries[2], entries[1]

	ok, k := VerifyEntries(entries, engine)
	assert.False(t, ok)
	assert.Equal(t, 2, k)
}
