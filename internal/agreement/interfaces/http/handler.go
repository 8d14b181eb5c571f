package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	agreement "trusted-properties/internal/agreement/domain"
	"trusted-properties/internal/agreement/application"
	"trusted-properties/internal/agreement/interfaces"
	"trusted-properties/internal/audit"
	"trusted-properties/internal/auth"
	"trusted-properties/internal/eventing"
	ledger "trusted-properties/internal/ledger/domain"
	"trusted-properties/internal/observability/metrics"
)

const maxBodyBytes = 1 << 16

// RequestIDHeader is copied into event envelopes as the correlation id.
const RequestIDHeader = "X-Request-ID"

// Handler exposes agreement instructions and account reads over HTTP.
type Handler struct {
	service     *application.Service
	auditLogger audit.Logger
	logger      zerolog.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *application.Service, auditLogger audit.Logger, logger zerolog.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("agreement handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger, logger: logger}, nil
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/agreements", h.handleInitialize)
	mux.HandleFunc("GET /api/v1/agreements/{address}", h.handleGet)
	mux.HandleFunc("POST /api/v1/agreements/{address}/deposit", h.handleDeposit)
	mux.HandleFunc("POST /api/v1/agreements/{address}/rent", h.handlePayRent)
	mux.HandleFunc("POST /api/v1/agreements/{address}/withhold", h.handleWithhold)
	mux.HandleFunc("POST /api/v1/agreements/{address}/terminate", h.handleTerminate)
	mux.HandleFunc("POST /api/v1/agreements/{address}/settle", h.handleSettle)
	mux.HandleFunc("GET /api/v1/agreements/{address}/statement.pdf", h.handleStatementPDF)
	mux.HandleFunc("GET /api/v1/agreements/{address}/statement.xlsx", h.handleStatementXLSX)
	mux.HandleFunc("GET /api/v1/accounts/{address}", h.handleBalance)
	mux.HandleFunc("POST /api/v1/accounts/{address}/airdrop", h.handleAirdrop)
}

type initializeRequest struct {
	Agreement       string `json:"agreement"`
	Tenant          string `json:"tenant"`
	SecurityDeposit uint64 `json:"security_deposit"`
	RentAmount      uint64 `json:"rent_amount"`
	Duration        uint64 `json:"duration"`
	StartMonth      uint64 `json:"start_month"`
	StartYear       uint64 `json:"start_year"`
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type withheldRequest struct {
	WithheldAmount uint64 `json:"withheld_amount"`
}

type balanceResponse struct {
	Address ledger.Address `json:"address"`
	Balance uint64         `json:"balance"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	body, ok := decodeBody(w, r, &req)
	if !ok {
		return
	}
	tenant, err := ledger.ParseAddress(req.Tenant)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var address ledger.Address
	if strings.TrimSpace(req.Agreement) != "" {
		if address, err = ledger.ParseAddress(req.Agreement); err != nil {
			h.writeError(w, err)
			return
		}
	}
	owner := ledger.Address(auth.SubjectFromContext(r.Context()))
	ctx := h.eventContext(r)
	snapshot, err := h.service.Initialize(ctx, application.InitializeCommand{
		Agreement: address,
		Owner:     owner,
		Tenant:    tenant,
		Terms: agreement.Terms{
			SecurityDeposit: req.SecurityDeposit,
			RentAmount:      req.RentAmount,
			Duration:        req.Duration,
			StartMonth:      req.StartMonth,
			StartYear:       req.StartYear,
		},
		Signers: signers(r.Context()),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logAudit(r, agreement.InstructionInitialize, snapshot.Address, body, map[string]any{
		"tenant":           snapshot.Tenant,
		"security_deposit": snapshot.SecurityDeposit,
		"rent_amount":      snapshot.RentAmount,
		"duration":         snapshot.Duration,
	})
	writeJSON(w, http.StatusCreated, snapshot)
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	var req amountRequest
	body, ok := decodeBody(w, r, &req)
	if !ok {
		return
	}
	snapshot, err := h.service.DepositSecurity(h.eventContext(r), address, req.Amount, signers(r.Context()))
	h.respondInstruction(w, r, agreement.InstructionDepositSecurity, address, body, map[string]any{"amount": req.Amount}, snapshot, err)
}

func (h *Handler) handlePayRent(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	snapshot, err := h.service.PayRent(h.eventContext(r), address, signers(r.Context()))
	h.respondInstruction(w, r, agreement.InstructionPayRent, address, nil, nil, snapshot, err)
}

func (h *Handler) handleWithhold(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	var req amountRequest
	body, ok := decodeBody(w, r, &req)
	if !ok {
		return
	}
	snapshot, err := h.service.WithholdDeposit(h.eventContext(r), address, req.Amount, signers(r.Context()))
	h.respondInstruction(w, r, agreement.InstructionWithholdDeposit, address, body, map[string]any{"amount": req.Amount}, snapshot, err)
}

func (h *Handler) handleTerminate(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	var req withheldRequest
	body, ok := decodeBody(w, r, &req)
	if !ok {
		return
	}
	snapshot, err := h.service.Terminate(h.eventContext(r), address, req.WithheldAmount, signers(r.Context()))
	h.respondInstruction(w, r, agreement.InstructionTerminate, address, body, map[string]any{"withheld_amount": req.WithheldAmount}, snapshot, err)
}

func (h *Handler) handleSettle(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	var req withheldRequest
	body, ok := decodeBody(w, r, &req)
	if !ok {
		return
	}
	snapshot, err := h.service.SettleDeposit(h.eventContext(r), address, req.WithheldAmount, signers(r.Context()))
	h.respondInstruction(w, r, agreement.InstructionSettleDeposit, address, body, map[string]any{"withheld_amount": req.WithheldAmount}, snapshot, err)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), address)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleStatementPDF(w http.ResponseWriter, r *http.Request) {
	h.exportStatement(w, r, "pdf", "application/pdf", interfaces.BuildStatementPDF)
}

func (h *Handler) handleStatementXLSX(w http.ResponseWriter, r *http.Request) {
	h.exportStatement(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", interfaces.BuildStatementXLSX)
}

func (h *Handler) exportStatement(w http.ResponseWriter, r *http.Request, format, contentType string, build func(application.View) ([]byte, error)) {
	start := time.Now()
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	view, err := h.service.Get(r.Context(), address)
	if err != nil {
		metrics.ObserveStatementExport(format, metrics.ResultError, time.Since(start))
		h.writeError(w, err)
		return
	}
	data, err := build(view)
	if err != nil {
		metrics.ObserveStatementExport(format, metrics.ResultError, time.Since(start))
		h.logger.Error().Err(err).Str("agreement", string(address)).Str("format", format).Msg("statement export failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "statement export failed", Code: agreement.CodeInternal})
		return
	}
	metrics.ObserveStatementExport(format, metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\"statement-"+string(address)+"."+format+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	balance, err := h.service.Balance(r.Context(), address)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: address, Balance: balance})
}

func (h *Handler) handleAirdrop(w http.ResponseWriter, r *http.Request) {
	address, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	var req amountRequest
	body, ok := decodeBody(w, r, &req)
	if !ok {
		return
	}
	balance, err := h.service.Airdrop(r.Context(), address, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logAuditAction(r, "account.airdrop", "account", address, body, map[string]any{"amount": req.Amount})
	writeJSON(w, http.StatusOK, balanceResponse{Address: address, Balance: balance})
}

func (h *Handler) respondInstruction(w http.ResponseWriter, r *http.Request, instruction agreement.Instruction, address ledger.Address, body []byte, meta map[string]any, snapshot agreement.Snapshot, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logAudit(r, instruction, address, body, meta)
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) pathAddress(w http.ResponseWriter, r *http.Request) (ledger.Address, bool) {
	address, err := ledger.ParseAddress(r.PathValue("address"))
	if err != nil {
		h.writeError(w, err)
		return "", false
	}
	return address, true
}

func (h *Handler) eventContext(r *http.Request) context.Context {
	ctx := eventing.WithActor(r.Context(), auth.SubjectFromContext(r.Context()))
	if id := strings.TrimSpace(r.Header.Get(RequestIDHeader)); id != "" {
		ctx = eventing.WithCorrelationID(ctx, id)
	}
	return ctx
}

func (h *Handler) logAudit(r *http.Request, instruction agreement.Instruction, address ledger.Address, body []byte, meta map[string]any) {
	h.logAuditAction(r, "agreement."+string(instruction), "agreement", address, body, meta)
}

func (h *Handler) logAuditAction(r *http.Request, action, resourceType string, address ledger.Address, body []byte, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	var metadata json.RawMessage
	if len(meta) > 0 {
		metadata, _ = json.Marshal(meta)
	}
	entry := audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   string(address),
		Metadata:     metadata,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if len(body) > 0 {
		entry.PayloadDigest = audit.DigestJSON(body)
	}
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Warn().Err(err).Str("action", action).Msg("audit log failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("agreement request failed")
		writeJSON(w, status, errorResponse{Error: "internal error", Code: code})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, application.ErrFaucetDisabled):
		return http.StatusForbidden, "faucet_disabled"
	case errors.Is(err, application.ErrCustodyAccount):
		return http.StatusBadRequest, "custody_account"
	}
	code := agreement.Code(err)
	switch code {
	case agreement.CodeInvalidTerms, agreement.CodeIncorrectAmount, agreement.CodeInvalidAddress:
		return http.StatusBadRequest, code
	case agreement.CodeUnauthorized:
		return http.StatusForbidden, code
	case agreement.CodeNotFound:
		return http.StatusNotFound, code
	case agreement.CodeAlreadyInitialized, agreement.CodeWrongStatus, agreement.CodeNoPaymentsDue, agreement.CodeDrawdownDisabled:
		return http.StatusConflict, code
	case agreement.CodeInsufficientFunds, agreement.CodeOverWithdrawal:
		return http.StatusUnprocessableEntity, code
	default:
		return http.StatusInternalServerError, agreement.CodeInternal
	}
}

func signers(ctx context.Context) agreement.Signers {
	subjects := auth.SignersFromContext(ctx)
	out := make(agreement.Signers, 0, len(subjects))
	for _, s := range subjects {
		out = append(out, ledger.Address(s))
	}
	return out
}

// decodeBody reads a JSON body into dst. An empty body leaves dst zeroed.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read body error", Code: "invalid_request"})
		return nil, false
	}
	defer r.Body.Close()
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json", Code: "invalid_request"})
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
