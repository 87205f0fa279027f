// Package fees implements the metered fee ledger: wallet auto-provisioning,
// admission gating on balance, tiered fee computation, and signed receipts.
// Balances and fees use money.Decimal throughout to keep arithmetic on a
// fixed 4-digit scale instead of binary floats.
package fees

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ocx/backend/internal/govstore"
	"github.com/ocx/backend/internal/money"
)

// StartingBalance is the balance a wallet is auto-provisioned with on first
// request for an agent that has never been billed before.
var StartingBalance = money.New(100, 0)

// tier is one row of the fee schedule: risk scores >= Threshold (evaluated
// greatest-first) pay Fee.
type tier struct {
	threshold int
	fee       money.Decimal
}

var feeTiers = []tier{
	{90, money.MustParse("0.0250")},
	{70, money.MustParse("0.0100")},
	{40, money.MustParse("0.0050")},
	{0, money.MustParse("0.0010")},
}

// feeForRisk returns the tier-appropriate fee for a risk score, evaluating
// thresholds greatest-first so the highest matching tier wins.
func feeForRisk(risk int) money.Decimal {
	for _, t := range feeTiers {
		if risk >= t.threshold {
			return t.fee
		}
	}
	return feeTiers[len(feeTiers)-1].fee
}

// PaymentRequiredError is raised by Gate when an agent's wallet is depleted.
type PaymentRequiredError struct {
	WalletID string
	Balance  string
}

func (e *PaymentRequiredError) Error() string {
	return fmt.Sprintf("payment required: wallet %s balance %s", e.WalletID, e.Balance)
}

// Ledger gates admission on wallet balance and mints receipts for every
// evaluated action.
type Ledger struct {
	store   govstore.Store
	enabled bool
}

// NewLedger wires the fee ledger against a store. enabled toggles whether
// the gate and charge actually apply; when false, Gate always admits and
// Charge still produces a receipt but never touches a wallet.
func NewLedger(store govstore.Store, enabled bool) *Ledger {
	return &Ledger{store: store, enabled: enabled}
}

// Gate decides whether agentID may proceed to evaluation. Fee-gating
// disabled, or an absent agent identity, always admits. Otherwise the
// agent's wallet is fetched (auto-provisioned at StartingBalance if
// missing); a balance <= 0 refuses admission.
func (l *Ledger) Gate(ctx context.Context, agentID string) (*govstore.Wallet, error) {
	if !l.enabled || agentID == "" {
		return nil, nil
	}

	wallet, err := l.store.GetOrCreateWallet(ctx, agentID, StartingBalance.String())
	if err != nil {
		return nil, fmt.Errorf("fees: gate wallet lookup: %w", err)
	}

	balance, err := money.Parse(wallet.Balance)
	if err != nil {
		return nil, fmt.Errorf("fees: parse wallet balance: %w", err)
	}
	if balance.LessOrEqualZero() {
		return wallet, &PaymentRequiredError{WalletID: wallet.WalletID, Balance: wallet.Balance}
	}
	return wallet, nil
}

// ChargeInput bundles everything charge_and_receipt needs from a completed
// evaluation.
type ChargeInput struct {
	Tool         string
	Decision     string
	RiskScore    int
	PolicyIDs    []string
	ChainPattern *string
	AgentID      string
	Wallet       *govstore.Wallet
}

// ChargeAndReceipt always produces and persists a receipt. If fee-gating is
// enabled and a wallet was resolved for the agent, the tier-appropriate fee
// is deducted from the wallet and added to its total_fees_paid.
func (l *Ledger) ChargeAndReceipt(ctx context.Context, in ChargeInput) (govstore.Receipt, error) {
	receiptID := "ocg-" + randomHex(16)
	createdAt := time.Now().UTC().Format(time.RFC3339)
	joinedPolicies := strings.Join(in.PolicyIDs, ",")

	var fee string
	if l.enabled && in.Wallet != nil {
		amount := feeForRisk(in.RiskScore)
		fee = amount.String()
		if err := l.store.ChargeWallet(ctx, in.Wallet.WalletID, fee); err != nil {
			return govstore.Receipt{}, fmt.Errorf("fees: charge wallet: %w", err)
		}
	}

	digest := receiptDigest(receiptID, createdAt, in.Tool, in.Decision, in.RiskScore, joinedPolicies)

	receipt := govstore.Receipt{
		ReceiptID:    receiptID,
		Tool:         in.Tool,
		Decision:     in.Decision,
		RiskScore:    in.RiskScore,
		PolicyIDs:    joinedPolicies,
		ChainPattern: in.ChainPattern,
		AgentID:      in.AgentID,
		Fee:          fee,
		Digest:       digest,
		CreatedAt:    createdAt,
	}

	if err := l.store.InsertReceipt(ctx, receipt); err != nil {
		return govstore.Receipt{}, fmt.Errorf("fees: insert receipt: %w", err)
	}
	return receipt, nil
}

// receiptDigest computes SHA-256("receipt_id|timestamp|tool|decision|risk|p1,p2,...")
// rendered as lowercase hex, matching the digest every Decision also carries.
func receiptDigest(receiptID, timestamp, tool, decision string, risk int, joinedPolicies string) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%d|%s", receiptID, timestamp, tool, decision, risk, joinedPolicies)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	buf := make([]byte, n/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read failing indicates a broken entropy source; fall
		// back to a timestamp-derived id rather than panicking mid-request.
		return hex.EncodeToString([]byte(fmt.Sprintf("%016x", time.Now().UnixNano())))[:n]
	}
	return hex.EncodeToString(buf)
}
