package govstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ocx/backend/internal/govtypes"
	"github.com/ocx/backend/internal/money"
)

// MemoryStore is a process-local Store used for tests and single-instance
// deployments without a configured Supabase project.
type MemoryStore struct {
	mu              sync.RWMutex
	actions         []govtypes.HistoryEntry
	nextActionID    int64
	killSwitch      bool
	dynamicPolicies []govtypes.Policy
	verifications   map[int64][]govtypes.VerificationVerdict
	escalations     []EscalationEvent
	nextEscID       int64
	escConfigs      map[string]*EscalationConfigRow
	webhooks        []EscalationWebhook
	wallets         map[string]*Wallet
	nextWalletID    int64
	receipts        []Receipt
	spans           map[string]map[string]govtypes.TraceSpan // traceID -> spanID -> span
}

// NewMemoryStore creates an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		verifications: make(map[int64][]govtypes.VerificationVerdict),
		escConfigs:    make(map[string]*EscalationConfigRow),
		wallets:       make(map[string]*Wallet),
		spans:         make(map[string]map[string]govtypes.TraceSpan),
	}
}

func (m *MemoryStore) InsertActionLog(_ context.Context, entry govtypes.HistoryEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextActionID++
	entry.ID = m.nextActionID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.actions = append(m.actions, entry)
	return entry.ID, nil
}

func (m *MemoryStore) GetActionByID(_ context.Context, id int64) (*govtypes.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.actions {
		if a.ID == id {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) AgentHistory(_ context.Context, agentID, sessionID string, window time.Duration, limit int) ([]govtypes.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-window)
	var out []govtypes.HistoryEntry
	for _, a := range m.actions {
		if agentID == "" || a.AgentID != agentID {
			continue
		}
		if a.CreatedAt.Before(cutoff) {
			continue
		}
		if sessionID != "" && a.SessionID != sessionID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStore) HistorySince(_ context.Context, agentID string, since, until time.Time) ([]govtypes.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []govtypes.HistoryEntry
	for _, a := range m.actions {
		if a.AgentID != agentID {
			continue
		}
		if a.CreatedAt.Before(since) || !a.CreatedAt.Before(until) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) GetKillSwitch(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.killSwitch, nil
}

func (m *MemoryStore) SetKillSwitch(_ context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killSwitch = enabled
	return nil
}

func (m *MemoryStore) DynamicPolicies(_ context.Context) ([]govtypes.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]govtypes.Policy, len(m.dynamicPolicies))
	copy(out, m.dynamicPolicies)
	return out, nil
}

// SeedPolicy is a test/bootstrap helper for injecting dynamic policies.
func (m *MemoryStore) SeedPolicy(p govtypes.Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dynamicPolicies = append(m.dynamicPolicies, p)
}

func (m *MemoryStore) InsertVerificationLog(_ context.Context, actionLogID int64, verdict govtypes.VerificationVerdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications[actionLogID] = append(m.verifications[actionLogID], verdict)
	return nil
}

func (m *MemoryStore) InsertEscalationEvent(_ context.Context, event EscalationEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEscID++
	m.escalations = append(m.escalations, event)
	return m.nextEscID, nil
}

func (m *MemoryStore) RecentActions(_ context.Context, agentID string, limit int) ([]govtypes.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []govtypes.HistoryEntry
	for _, a := range m.actions {
		if agentID != "" && a.AgentID != agentID {
			continue
		}
		filtered = append(filtered, a)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt.After(filtered[j].CreatedAt) })
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (m *MemoryStore) EscalationConfig(_ context.Context, scope string) (*EscalationConfigRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if row, ok := m.escConfigs[scope]; ok {
		return row, nil
	}
	return nil, nil
}

// SetEscalationConfig is a test/admin helper for installing a config row.
func (m *MemoryStore) SetEscalationConfig(row EscalationConfigRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escConfigs[row.Scope] = &row
}

func (m *MemoryStore) ActiveWebhooks(_ context.Context) ([]EscalationWebhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []EscalationWebhook
	for _, w := range m.webhooks {
		if w.IsActive {
			out = append(out, w)
		}
	}
	return out, nil
}

// RegisterWebhook is a test/admin helper for installing a webhook row.
func (m *MemoryStore) RegisterWebhook(w EscalationWebhook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks = append(m.webhooks, w)
}

func (m *MemoryStore) GetOrCreateWallet(_ context.Context, agentID, startingBalance string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.wallets[agentID]; ok {
		cp := *w
		return &cp, nil
	}

	m.nextWalletID++
	w := &Wallet{
		WalletID:       fmt.Sprintf("wallet-%d", m.nextWalletID),
		AgentID:        agentID,
		Label:          fmt.Sprintf("agent:%s", agentID),
		Balance:        startingBalance,
		TotalDeposited: startingBalance,
		TotalFeesPaid:  money.Zero.String(),
	}
	m.wallets[agentID] = w
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) ChargeWallet(_ context.Context, walletID, fee string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.wallets {
		if w.WalletID != walletID {
			continue
		}
		feeAmt, err := money.Parse(fee)
		if err != nil {
			return err
		}
		balance, err := money.Parse(w.Balance)
		if err != nil {
			return err
		}
		paid, err := money.Parse(w.TotalFeesPaid)
		if err != nil {
			return err
		}
		w.Balance = balance.Sub(feeAmt).String()
		w.TotalFeesPaid = paid.Add(feeAmt).String()
		return nil
	}
	return fmt.Errorf("govstore: wallet %q not found", walletID)
}

func (m *MemoryStore) InsertReceipt(_ context.Context, r Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = append(m.receipts, r)
	return nil
}

func (m *MemoryStore) UpsertSpan(_ context.Context, span govtypes.TraceSpan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.spans[span.TraceID] == nil {
		m.spans[span.TraceID] = make(map[string]govtypes.TraceSpan)
	}
	m.spans[span.TraceID][span.SpanID] = span
	return nil
}

func (m *MemoryStore) SpansByTrace(_ context.Context, traceID string) ([]govtypes.TraceSpan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	spans := m.spans[traceID]
	out := make([]govtypes.TraceSpan, 0, len(spans))
	for _, s := range spans {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *MemoryStore) DeleteSpansByTrace(_ context.Context, traceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.spans, traceID)
	return nil
}
