// Package audit implements the append-only, tamper-evident audit log.
//
// Every consequential action gets a signed, hash-chained entry. Each
// entry's prev_hash is the content hash of its predecessor, so editing,
// reordering, or deleting any entry breaks the chain from that point,
// detectable by linear replay. There is no write path that can repair a
// broken chain.
package audit

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zypherlabs/skywarden/internal/crypto"
	"github.com/zypherlabs/skywarden/internal/ids"
	"github.com/zypherlabs/skywarden/internal/logging"
	"github.com/zypherlabs/skywarden/internal/model"
	"github.com/zypherlabs/skywarden/internal/store"
)

// Logger appends signed, hash-chained audit entries. All appends in the
// process must funnel through a single Logger: the append mutex is the
// global serialization point that keeps the chain from forking.
type Logger struct {
	mu     sync.Mutex
	store  *store.Store
	crypto *crypto.Engine
	actor  string
	gen    *ids.Generator
	log    *zap.Logger
}

// NewLogger returns a Logger writing entries as actor.
func NewLogger(st *store.Store, engine *crypto.Engine, actor string, gen *ids.Generator, log *zap.Logger) *Logger {
	return &Logger{
		store:  st,
		crypto: engine,
		actor:  actor,
		gen:    gen,
		log:    log,
	}
}

// Log creates, signs, and durably appends one audit entry referencing
// the current chain head, and returns it.
func (l *Logger) Log(action string, details map[string]any) (*model.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.store.LastAuditEntry()
	if err != nil {
		return nil, fmt.Errorf("read chain head: %w", err)
	}
	prevHash := ""
	if last != nil {
		prevHash = last.ContentHash()
	}

	entry := &model.AuditEntry{
		ID:        l.gen.New(),
		Timestamp: model.Now(),
		Actor:     l.actor,
		Action:    action,
		Details:   details,
		PrevHash:  prevHash,
	}

	sig, err := l.crypto.SignData(entry.SignablePayload())
	if err != nil {
		return nil, fmt.Errorf("sign audit entry: %w", err)
	}
	entry.Signature = sig

	if err := l.store.AppendAudit(entry); err != nil {
		return nil, err
	}

	l.log.Debug("audit entry appended",
		logging.Action(entry.Action),
		logging.Actor(entry.Actor),
		zap.String("entry_id", entry.ID))
	return entry, nil
}

// VerifyChain replays all entries in creation order, checking each
// entry's prev-hash linkage and its own signature. With an intact chain
// of N entries it returns (true, N); on the first entry failing either
// check it returns (false, k) where k is that entry's 1-based position.
func (l *Logger) VerifyChain() (bool, int, error) {
	entries, err := l.store.AuditEntries()
	if err != nil {
		return false, 0, err
	}
	ok, n := VerifyEntries(entries, l.crypto)
	return ok, n, nil
}

// Recent returns up to limit entries, most recent first.
func (l *Logger) Recent(limit int) ([]*model.AuditEntry, error) {
	return l.store.RecentAudit(limit)
}

// VerifyEntries checks a chain given in creation order. It returns
// (true, len) for an intact chain, or (false, k) where k is the 1-based
// position of the first entry whose chain link or signature fails.
func VerifyEntries(entries []*model.AuditEntry, engine *crypto.Engine) (bool, int) {
	prevHash := ""
	for i, e := range entries {
		if e.PrevHash != prevHash {
			return false, i + 1
		}
		if !engine.VerifySignature(e.SignablePayload(), e.Signature) {
			return false, i + 1
		}
		prevHash = e.ContentHash()
	}
	return true, len(entries)
}
