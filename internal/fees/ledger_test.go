package fees

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/govstore"
)

func TestGate_DisabledAlwaysAdmits(t *testing.T) {
	store := govstore.NewMemoryStore()
	ledger := NewLedger(store, false)

	wallet, err := ledger.Gate(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Nil(t, wallet)
}

func TestGate_EmptyAgentIDAlwaysAdmits(t *testing.T) {
	store := govstore.NewMemoryStore()
	ledger := NewLedger(store, true)

	wallet, err := ledger.Gate(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, wallet)
}

func TestGate_AutoProvisionsAndAdmitsWithBalance(t *testing.T) {
	store := govstore.NewMemoryStore()
	ledger := NewLedger(store, true)

	wallet, err := ledger.Gate(context.Background(), "agent-1")
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.Equal(t, StartingBalance.String(), wallet.Balance)
}

func TestGate_RefusesWhenBalanceDepleted(t *testing.T) {
	store := govstore.NewMemoryStore()
	ledger := NewLedger(store, true)
	ctx := context.Background()

	wallet, err := ledger.Gate(ctx, "agent-1")
	require.NoError(t, err)

	require.NoError(t, store.ChargeWallet(ctx, wallet.WalletID, StartingBalance.String()))

	_, err = ledger.Gate(ctx, "agent-1")
	require.Error(t, err)
	var payErr *PaymentRequiredError
	assert.ErrorAs(t, err, &payErr)
}

func TestFeeForRisk_TierBoundaries(t *testing.T) {
	cases := []struct {
		risk int
		want string
	}{
		{100, "0.0250"},
		{90, "0.0250"},
		{89, "0.0100"},
		{70, "0.0100"},
		{69, "0.0050"},
		{40, "0.0050"},
		{39, "0.0010"},
		{0, "0.0010"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, feeForRisk(c.risk).String())
	}
}

func TestChargeAndReceipt_DeductsWhenGatingEnabled(t *testing.T) {
	store := govstore.NewMemoryStore()
	ledger := NewLedger(store, true)
	ctx := context.Background()

	wallet, err := ledger.Gate(ctx, "agent-1")
	require.NoError(t, err)

	receipt, err := ledger.ChargeAndReceipt(ctx, ChargeInput{
		Tool:      "send_email",
		Decision:  "allow",
		RiskScore: 95,
		PolicyIDs: []string{"p1", "p2"},
		AgentID:   "agent-1",
		Wallet:    wallet,
	})
	require.NoError(t, err)

	assert.True(t, len(receipt.ReceiptID) > 4 && receipt.ReceiptID[:4] == "ocg-")
	assert.NotEmpty(t, receipt.Digest)
	assert.Equal(t, "0.0250", receipt.Fee)

	updated, err := store.GetOrCreateWallet(ctx, "agent-1", StartingBalance.String())
	require.NoError(t, err)
	assert.Equal(t, "99.9750", updated.Balance)
}

func TestChargeAndReceipt_AlwaysPersistsReceiptEvenWhenGatingDisabled(t *testing.T) {
	store := govstore.NewMemoryStore()
	ledger := NewLedger(store, false)
	ctx := context.Background()

	receipt, err := ledger.ChargeAndReceipt(ctx, ChargeInput{
		Tool:      "read_file",
		Decision:  "allow",
		RiskScore: 10,
		AgentID:   "agent-2",
	})
	require.NoError(t, err)
	assert.Empty(t, receipt.Fee, "gating disabled means no fee is deducted")
	assert.NotEmpty(t, receipt.ReceiptID)
}
