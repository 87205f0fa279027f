package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/escalation"
	"github.com/ocx/backend/internal/fees"
	"github.com/ocx/backend/internal/govevents"
	"github.com/ocx/backend/internal/govstore"
	"github.com/ocx/backend/internal/govtypes"
	"github.com/ocx/backend/internal/pipeline"
	"github.com/ocx/backend/internal/policy"
	"github.com/ocx/backend/internal/session"
	"github.com/ocx/backend/internal/trace"
	"github.com/ocx/backend/internal/verify"
)

func newTestEvaluator(store *govstore.MemoryStore) *pipeline.Evaluator {
	registry := policy.NewRegistry("/nonexistent/base_policies.yaml", store)
	return pipeline.NewEvaluator(store, registry, session.NewResolver(store))
}

func TestHandleEvaluate_AllowsCleanAction(t *testing.T) {
	store := govstore.NewMemoryStore()
	evaluator := newTestEvaluator(store)
	ledger := fees.NewLedger(store, false)

	handler := HandleEvaluate(evaluator, ledger, store, nil, nil, nil, nil)

	body, _ := json.Marshal(govtypes.ActionRequest{Tool: "read_file", AgentID: "agent-1"})
	req := httptest.NewRequest(http.MethodPost, "/govern/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var decision govtypes.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, "allow", decision.Decision)
	assert.NotEmpty(t, decision.ReceiptID)
}

func TestHandleEvaluate_BlockedActionReturns403(t *testing.T) {
	store := govstore.NewMemoryStore()
	evaluator := newTestEvaluator(store)
	ledger := fees.NewLedger(store, false)

	handler := HandleEvaluate(evaluator, ledger, store, nil, nil, nil, nil)

	require.NoError(t, store.SetKillSwitch(context.Background(), true))
	body, _ := json.Marshal(govtypes.ActionRequest{Tool: "read_file", AgentID: "agent-1"})
	req := httptest.NewRequest(http.MethodPost, "/govern/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleEvaluate_InvalidBodyReturns400(t *testing.T) {
	store := govstore.NewMemoryStore()
	evaluator := newTestEvaluator(store)
	ledger := fees.NewLedger(store, false)

	handler := HandleEvaluate(evaluator, ledger, store, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/govern/evaluate", bytes.NewReader([]byte("not-json")))
	rec := httptest.NewRecorder()

	handler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWalletStatus_AutoProvisionsWallet(t *testing.T) {
	store := govstore.NewMemoryStore()
	handler := HandleWalletStatus(store)

	req := httptest.NewRequest(http.MethodGet, "/govern/wallet/agent-1", nil)
	req = mux.SetURLVars(req, map[string]string{"agentId": "agent-1"})
	rec := httptest.NewRecorder()

	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var wallet govstore.Wallet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wallet))
	assert.Equal(t, fees.StartingBalance.String(), wallet.Balance)
}

func TestHandleVerify_UnknownActionIDReturns404(t *testing.T) {
	store := govstore.NewMemoryStore()
	engine := verify.NewEngine(nil, nil)
	handler := HandleVerify(engine, store, nil, nil, nil, nil)

	body, _ := json.Marshal(verify.Input{ActionID: 999, Tool: "read_file"})
	req := httptest.NewRequest(http.MethodPost, "/govern/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleVerify_DerivesOriginalDecisionFromStore(t *testing.T) {
	store := govstore.NewMemoryStore()
	actionID, err := store.InsertActionLog(context.Background(), govtypes.HistoryEntry{
		Tool:      "read_file",
		AgentID:   "agent-1",
		Decision:  "allow",
		RiskScore: 10,
	})
	require.NoError(t, err)

	registry := policy.NewRegistry("/nonexistent/base_policies.yaml", store)
	engine := verify.NewEngine(registry, verify.NewDrift(store))
	handler := HandleVerify(engine, store, nil, nil, nil, nil)

	body, _ := json.Marshal(verify.Input{
		ActionID: actionID,
		Tool:     "read_file",
		Result:   map[string]interface{}{"content": "hello"},
		// A client attempt to spoof the original decision/risk is ignored —
		// the handler derives both from the stored action.
		OriginalDecision: "block",
		OriginalRisk:     95,
	})
	req := httptest.NewRequest(http.MethodPost, "/govern/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var verdict govtypes.VerificationVerdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.Equal(t, "compliant", verdict.Verdict)

	verifications, err := store.GetActionByID(context.Background(), actionID)
	require.NoError(t, err)
	require.NotNil(t, verifications)
}

func TestHandleVerify_ViolationEscalatesAndPublishes(t *testing.T) {
	store := govstore.NewMemoryStore()
	actionID, err := store.InsertActionLog(context.Background(), govtypes.HistoryEntry{
		Tool:      "delete_database",
		AgentID:   "agent-1",
		Decision:  "block",
		RiskScore: 95,
	})
	require.NoError(t, err)

	registry := policy.NewRegistry("/nonexistent/base_policies.yaml", store)
	engine := verify.NewEngine(registry, verify.NewDrift(store))

	dispatcher := escalation.NewDispatcher(store, 1)
	defer dispatcher.Shutdown()
	bus := govevents.NewBus()
	escalator := escalation.NewEngine(store, dispatcher, bus)

	handler := HandleVerify(engine, store, escalator, nil, bus, nil)

	body, _ := json.Marshal(verify.Input{
		ActionID: actionID,
		Tool:     "delete_database",
		Result:   map[string]interface{}{"content": "password=hunter2 api_key=sk-live-abc123"},
	})
	req := httptest.NewRequest(http.MethodPost, "/govern/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var verdict govtypes.VerificationVerdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.Equal(t, "violation", verdict.Verdict)
	assert.True(t, verdict.Escalated)
}

func TestHandleIngestSpanAndHandleTrace(t *testing.T) {
	store := govstore.NewMemoryStore()
	linker := trace.NewLinker(store, nil)

	ingest := HandleIngestSpan(linker)
	body, _ := json.Marshal(govtypes.TraceSpan{TraceID: "t1", SpanID: "s1", Kind: "tool", Status: "ok"})
	req := httptest.NewRequest(http.MethodPost, "/govern/trace/span", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ingest(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	lookup := HandleTrace(linker)
	traceReq := httptest.NewRequest(http.MethodGet, "/govern/trace/t1", nil)
	traceReq = mux.SetURLVars(traceReq, map[string]string{"traceId": "t1"})
	traceRec := httptest.NewRecorder()
	lookup(traceRec, traceReq)

	require.Equal(t, http.StatusOK, traceRec.Code)
	var spans []govtypes.TraceSpan
	require.NoError(t, json.Unmarshal(traceRec.Body.Bytes(), &spans))
	require.Len(t, spans, 1)
	assert.Equal(t, "s1", spans[0].SpanID)
}
