package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ocx/backend/internal/escalation"
	"github.com/ocx/backend/internal/fees"
	"github.com/ocx/backend/internal/govevents"
	"github.com/ocx/backend/internal/govmetrics"
	"github.com/ocx/backend/internal/govstore"
	"github.com/ocx/backend/internal/govtypes"
	"github.com/ocx/backend/internal/pipeline"
	"github.com/ocx/backend/internal/trace"
	"github.com/ocx/backend/internal/verify"
)

// HandleEvaluate runs the five-layer pipeline over a submitted action,
// gating admission on the agent's fee balance, mints a receipt, links the
// decision into the trace tree, dispatches escalations, and publishes the
// decision on the event bus.
func HandleEvaluate(
	evaluator *pipeline.Evaluator,
	ledger *fees.Ledger,
	store govstore.Store,
	escalator *escalation.Engine,
	linker *trace.Linker,
	bus *govevents.Bus,
	metrics *govmetrics.Metrics,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req govtypes.ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		wallet, err := ledger.Gate(r.Context(), req.AgentID)
		if err != nil {
			if _, ok := err.(*fees.PaymentRequiredError); ok {
				if metrics != nil {
					metrics.PaymentRequired.WithLabelValues(req.AgentID).Inc()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusPaymentRequired)
				json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			slog.Warn("fee gate failed, admitting fail-open", "error", err)
		}

		evalStart := time.Now()
		decision := evaluator.Evaluate(r.Context(), req)
		if metrics != nil {
			metrics.EvaluationsTotal.WithLabelValues(req.Tool, decision.Decision).Inc()
			metrics.EvaluationLatency.WithLabelValues(req.Tool).Observe(time.Since(evalStart).Seconds())
			metrics.RiskScore.WithLabelValues(req.Tool).Observe(float64(decision.RiskScore))
		}

		receipt, err := ledger.ChargeAndReceipt(r.Context(), fees.ChargeInput{
			Tool:         req.Tool,
			Decision:     decision.Decision,
			RiskScore:    decision.RiskScore,
			PolicyIDs:    decision.PolicyIDs,
			ChainPattern: decision.ChainPattern,
			AgentID:      req.AgentID,
			Wallet:       wallet,
		})
		if err != nil {
			slog.Warn("receipt mint failed", "error", err)
		} else {
			decision.ReceiptID = receipt.ReceiptID
			decision.ReceiptDigest = receipt.Digest
			if metrics != nil {
				metrics.FeesCharged.WithLabelValues(req.AgentID).Inc()
				if wallet != nil {
					if balance, perr := parseBalanceForMetrics(wallet.Balance); perr == nil {
						metrics.WalletBalance.WithLabelValues(req.AgentID).Set(balance)
					}
				}
			}
		}

		argsJSON, err := json.Marshal(req.Args)
		if err != nil {
			argsJSON = []byte("{}")
		}
		contextJSON, err := json.Marshal(req.Context)
		if err != nil {
			contextJSON = []byte("{}")
		}

		actionLogID, err := store.InsertActionLog(r.Context(), govtypes.HistoryEntry{
			CreatedAt:      time.Now().UTC(),
			Tool:           req.Tool,
			Args:           string(argsJSON),
			Context:        string(contextJSON),
			AgentID:        req.AgentID,
			SessionID:      req.SessionID,
			UserID:         req.UserID,
			Channel:        req.Channel,
			TraceID:        req.TraceID,
			SpanID:         req.SpanID,
			ConversationID: stringFromContext(req.Context, "conversation_id"),
			TurnID:         stringFromContext(req.Context, "turn_id"),
			Decision:       decision.Decision,
			RiskScore:      decision.RiskScore,
			Explanation:    decision.Explanation,
			PolicyIDs:      decision.PolicyIDs,
		})
		if err != nil {
			slog.Warn("action log insert failed", "error", err)
		}

		if escalator != nil {
			outcome := escalator.HandlePostEvaluation(r.Context(), escalation.HandleInput{
				ActionLogID:  actionLogID,
				Tool:         req.Tool,
				AgentID:      req.AgentID,
				SessionID:    req.SessionID,
				Decision:     decision.Decision,
				RiskScore:    decision.RiskScore,
				Explanation:  decision.Explanation,
				PolicyIDs:    decision.PolicyIDs,
				ChainPattern: decision.ChainPattern,
			})
			if outcome.EscalationID != 0 {
				decision.Escalated = true
				decision.EscalationID = strconv.FormatInt(outcome.EscalationID, 10)
				decision.EscalationSeverity = outcome.Severity
			}
			decision.AutoKSTriggered = outcome.AutoKSTriggered
			if metrics != nil && (decision.Decision == "block" || decision.Decision == "review") {
				trigger := "policy_" + decision.Decision
				if decision.ChainPattern != nil {
					trigger = "chain_escalation"
				}
				metrics.EscalationsTotal.WithLabelValues(outcome.Severity, trigger).Inc()
			}
		}

		if linker != nil {
			if _, err := linker.LinkDecision(r.Context(), req, decision); err != nil {
				slog.Warn("trace link failed", "error", err)
			}
		}

		if bus != nil {
			bus.Emit("governor.decision", "/govern/evaluate", req.Tool, map[string]interface{}{
				"tool":        req.Tool,
				"agent_id":    req.AgentID,
				"decision":    decision.Decision,
				"risk_score":  decision.RiskScore,
				"receipt_id":  decision.ReceiptID,
				"policy_ids":  decision.PolicyIDs,
				"action_log":  actionLogID,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if decision.Decision == "block" {
			w.WriteHeader(http.StatusForbidden)
		} else if decision.Decision == "review" {
			w.WriteHeader(http.StatusAccepted)
		}
		json.NewEncoder(w).Encode(decision)
	}
}

// HandleVerify runs the post-execution verification battery over a
// completed tool result and returns the resulting verdict. The original
// decision it re-examines is looked up server-side by action_id — a caller
// cannot supply or spoof what that original decision said.
func HandleVerify(
	engine *verify.Engine,
	store govstore.Store,
	escalator *escalation.Engine,
	linker *trace.Linker,
	bus *govevents.Bus,
	metrics *govmetrics.Metrics,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in verify.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		original, err := store.GetActionByID(r.Context(), in.ActionID)
		if err != nil {
			http.Error(w, `{"error":"action lookup failed"}`, http.StatusInternalServerError)
			return
		}
		if original == nil {
			http.Error(w, `{"error":"no action found for action_id"}`, http.StatusNotFound)
			return
		}
		in.OriginalDecision = original.Decision
		in.OriginalRisk = original.RiskScore

		verdict := engine.Verify(r.Context(), in)
		if metrics != nil {
			metrics.VerificationsTotal.WithLabelValues(in.Tool, verdict.Verdict).Inc()
			metrics.VerificationDelta.WithLabelValues(in.Tool).Observe(float64(verdict.RiskDelta))
		}

		if err := store.InsertVerificationLog(r.Context(), in.ActionID, verdict); err != nil {
			slog.Warn("verification log insert failed", "error", err)
		}

		if escalator != nil && (verdict.Verdict == "violation" || verdict.Verdict == "suspicious") {
			outcome := escalator.HandlePostEvaluation(r.Context(), escalation.HandleInput{
				ActionLogID: in.ActionID,
				Tool:        in.Tool,
				AgentID:     in.AgentID,
				SessionID:   in.SessionID,
				Decision:    verdictDecision(verdict.Verdict),
				RiskScore:   original.RiskScore + verdict.RiskDelta,
				Explanation: verificationExplanation(verdict),
				PolicyIDs:   original.PolicyIDs,
			})
			if outcome.EscalationID != 0 {
				verdict.Escalated = true
			}
			if metrics != nil && outcome.EscalationID != 0 {
				metrics.EscalationsTotal.WithLabelValues(outcome.Severity, "verification_"+verdict.Verdict).Inc()
			}
		}

		if linker != nil {
			if _, err := linker.LinkVerification(r.Context(), *original, verdict); err != nil {
				slog.Warn("trace link failed", "error", err)
			}
		}

		if bus != nil {
			bus.Emit("action_verified", "/govern/verify", in.Tool, map[string]interface{}{
				"action_id":  in.ActionID,
				"tool":       in.Tool,
				"agent_id":   in.AgentID,
				"verdict":    verdict.Verdict,
				"risk_delta": verdict.RiskDelta,
				"escalated":  verdict.Escalated,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(verdict)
	}
}

// verdictDecision maps a verification verdict onto the decision vocabulary
// the escalation engine already understands (allow | review | block).
func verdictDecision(verdict string) string {
	switch verdict {
	case "violation":
		return "block"
	case "suspicious":
		return "review"
	default:
		return "allow"
	}
}

func verificationExplanation(verdict govtypes.VerificationVerdict) string {
	var detail string
	for _, f := range verdict.Findings {
		if f.Outcome == "fail" || f.Outcome == "warn" {
			if detail != "" {
				detail += "; "
			}
			detail += f.Detail
		}
	}
	if detail == "" {
		detail = "Post-execution verification flagged this action."
	}
	return detail
}

// stringFromContext type-asserts a string value out of req.Context, or
// returns "" if the key is absent or holds a non-string value.
func stringFromContext(ctx map[string]interface{}, key string) string {
	v, ok := ctx[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// HandleTrace returns every span ingested for a trace_id, oldest first.
func HandleTrace(linker *trace.Linker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := mux.Vars(r)["traceId"]
		spans, err := linker.Trace(r.Context(), traceID)
		if err != nil {
			http.Error(w, `{"error":"trace lookup failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(spans)
	}
}

// HandleIngestSpan persists a single agent/LLM/tool span submitted directly
// by an instrumented caller, outside the governance evaluation path.
func HandleIngestSpan(linker *trace.Linker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var span govtypes.TraceSpan
		if err := json.NewDecoder(r.Body).Decode(&span); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		leafHash, err := linker.IngestSpan(r.Context(), span)
		if err != nil {
			http.Error(w, `{"error":"span ingest failed"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"leaf_hash": leafHash})
	}
}

// HandleGovernorEvents streams governance decisions and escalations to a
// Server-Sent Events client, falling back to a heartbeat comment whenever
// the bus has been idle for govevents.HeartbeatInterval.
func HandleGovernorEvents(bus *govevents.Bus, metrics *govmetrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ch := bus.Subscribe()
		defer func() {
			bus.Unsubscribe(ch)
			if metrics != nil {
				metrics.EventBusSubscribers.WithLabelValues().Set(float64(bus.SubscriberCount()))
			}
		}()
		if metrics != nil {
			metrics.EventBusSubscribers.WithLabelValues().Set(float64(bus.SubscriberCount()))
		}

		ticker := time.NewTicker(govevents.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case event, open := <-ch:
				if !open {
					return
				}
				frame, err := event.SSEFormat()
				if err != nil {
					continue
				}
				w.Write(frame)
				flusher.Flush()
			case <-ticker.C:
				w.Write(govevents.HeartbeatFrame())
				flusher.Flush()
			}
		}
	}
}

// HandleWalletStatus reports the caller's current fee-ledger balance.
func HandleWalletStatus(store govstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID := mux.Vars(r)["agentId"]
		wallet, err := store.GetOrCreateWallet(r.Context(), agentID, fees.StartingBalance.String())
		if err != nil {
			http.Error(w, `{"error":"wallet lookup failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wallet)
	}
}

func parseBalanceForMetrics(balance string) (float64, error) {
	return strconv.ParseFloat(balance, 64)
}
