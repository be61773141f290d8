package sessions

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"stockpledge/internal/audit"
	"stockpledge/internal/httputil"
	"stockpledge/internal/model"
	"stockpledge/internal/stream"
	"stockpledge/internal/types"
)

// Handler serves the public read endpoints and the admin session API.
type Handler struct {
	store *Store
	bus   *stream.Bus
}

func NewHandler(store *Store, bus *stream.Bus) *Handler {
	return &Handler{store: store, bus: bus}
}

// List returns sessions, filterable by ?status=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := types.SessionStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	sessions, err := h.store.List(r.Context(), status)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load sessions"})
		return
	}
	if sessions == nil {
		sessions = []model.PledgeSession{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.GetByID(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteJSON(w, statusForError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess)
}

// Stats recomputes the aggregate on every call and mirrors it onto the
// stream bus so websocket watchers stay current.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	stats, err := h.store.Stats(r.Context(), sessionID)
	if err != nil {
		httputil.WriteJSON(w, statusForError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	h.bus.Publish(stream.Event{Type: stream.EventSessionStats, SessionID: sessionID, Data: stats})
	httputil.WriteJSON(w, http.StatusOK, stats)
}

type createSessionRequest struct {
	StockSymbol    string `json:"stock_symbol"`
	SessionMode    string `json:"session_mode"`
	SessionStart   string `json:"session_start"`
	SessionEnd     string `json:"session_end"`
	MinQty         string `json:"min_qty"`
	MaxQty         string `json:"max_qty"`
	Capacity       int    `json:"capacity"`
	FeeType        string `json:"convenience_fee_type"`
	FeeAmount      string `json:"convenience_fee_amount"`
	CommissionRate string `json:"commission_rate_override"`
	AllowAMO       bool   `json:"allow_amo"`
}

func (h *Handler) AdminCreate(w http.ResponseWriter, r *http.Request, adminID string) {
	var req createSessionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	sess, errMsg := sessionFromRequest(req, adminID)
	if errMsg != "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: errMsg})
		return
	}
	created, err := h.store.Create(r.Context(), sess, audit.Entry{
		ActorID:    adminID,
		ActorRole:  types.ActorRoleAdmin,
		Action:     types.AuditActionSessionCreated,
		TargetType: types.AuditTargetSession,
		Payload: map[string]any{
			"stock_symbol": sess.StockSymbol,
			"session_mode": string(sess.Mode),
			"capacity":     sess.Capacity,
		},
		Success: true,
	})
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to create session"})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) AdminUpdate(w http.ResponseWriter, r *http.Request, adminID string) {
	sessionID := chi.URLParam(r, "sessionID")
	var req createSessionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	current, err := h.store.GetByID(r.Context(), sessionID)
	if err != nil {
		httputil.WriteJSON(w, statusForError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	updated, errMsg := sessionFromRequest(req, adminID)
	if errMsg != "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: errMsg})
		return
	}
	updated.ID = current.ID
	out, err := h.store.UpdateConfig(r.Context(), updated, audit.Entry{
		ActorID:    adminID,
		ActorRole:  types.ActorRoleAdmin,
		Action:     types.AuditActionSessionUpdated,
		TargetType: types.AuditTargetSession,
		Payload: map[string]any{
			"stock_symbol":      current.StockSymbol,
			"prior_capacity":    current.Capacity,
			"new_capacity":      updated.Capacity,
			"prior_fee_amount":  current.FeeAmount.String(),
			"new_fee_amount":    updated.FeeAmount.String(),
			"prior_session_end": current.SessionEnd,
			"new_session_end":   updated.SessionEnd,
		},
		Success: true,
	})
	if err != nil {
		httputil.WriteJSON(w, statusForError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type transitionRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (h *Handler) AdminTransition(w http.ResponseWriter, r *http.Request, adminID string) {
	sessionID := chi.URLParam(r, "sessionID")
	var req transitionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	from := types.SessionStatus(req.From)
	to := types.SessionStatus(req.To)
	err := h.store.Transition(r.Context(), sessionID, from, to, audit.Entry{
		ActorID:    adminID,
		ActorRole:  types.ActorRoleAdmin,
		Action:     types.AuditActionSessionStatusChanged,
		TargetType: types.AuditTargetSession,
		Payload: map[string]any{
			"prior_status": req.From,
			"new_status":   req.To,
		},
		Success: true,
	})
	if err != nil {
		httputil.WriteJSON(w, statusForError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	h.bus.Publish(stream.Event{Type: stream.EventSessionStatus, SessionID: sessionID, Data: map[string]string{"status": req.To}})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": req.To})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) AdminCancel(w http.ResponseWriter, r *http.Request, adminID string) {
	sessionID := chi.URLParam(r, "sessionID")
	var req cancelRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	err := h.store.Cancel(r.Context(), sessionID, audit.Entry{
		ActorID:    adminID,
		ActorRole:  types.ActorRoleAdmin,
		Action:     types.AuditActionSessionCancelled,
		TargetType: types.AuditTargetSession,
		Payload:    map[string]any{"reason": req.Reason},
		Success:    true,
	})
	if err != nil {
		httputil.WriteJSON(w, statusForError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	h.bus.Publish(stream.Event{Type: stream.EventSessionStatus, SessionID: sessionID, Data: map[string]string{"status": string(types.SessionStatusCancelled)}})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": string(types.SessionStatusCancelled)})
}

func sessionFromRequest(req createSessionRequest, adminID string) (model.PledgeSession, string) {
	symbol := strings.ToUpper(strings.TrimSpace(req.StockSymbol))
	if symbol == "" {
		return model.PledgeSession{}, "stock_symbol is required"
	}
	mode := types.SessionMode(req.SessionMode)
	switch mode {
	case types.SessionModeBuyOnly, types.SessionModeSellOnly, types.SessionModeBuySellCycle:
	default:
		return model.PledgeSession{}, "session_mode must be buy_only, sell_only or buy_sell_cycle"
	}
	start, err := time.Parse(time.RFC3339, req.SessionStart)
	if err != nil {
		return model.PledgeSession{}, "invalid session_start"
	}
	end, err := time.Parse(time.RFC3339, req.SessionEnd)
	if err != nil {
		return model.PledgeSession{}, "invalid session_end"
	}
	if !end.After(start) {
		return model.PledgeSession{}, "session_end must be after session_start"
	}
	feeType := types.FeeType(req.FeeType)
	if feeType != types.FeeTypeFlat && feeType != types.FeeTypePercentage {
		return model.PledgeSession{}, "convenience_fee_type must be flat or percentage"
	}
	feeAmount, err := decimal.NewFromString(req.FeeAmount)
	if err != nil || feeAmount.IsNegative() {
		return model.PledgeSession{}, "invalid convenience_fee_amount"
	}
	commission := decimal.Zero
	if req.CommissionRate != "" {
		commission, err = decimal.NewFromString(req.CommissionRate)
		if err != nil || commission.IsNegative() {
			return model.PledgeSession{}, "invalid commission_rate_override"
		}
	}
	var minQty, maxQty *decimal.Decimal
	if req.MinQty != "" {
		q, err := decimal.NewFromString(req.MinQty)
		if err != nil || !q.IsPositive() {
			return model.PledgeSession{}, "invalid min_qty"
		}
		minQty = &q
	}
	if req.MaxQty != "" {
		q, err := decimal.NewFromString(req.MaxQty)
		if err != nil || !q.IsPositive() {
			return model.PledgeSession{}, "invalid max_qty"
		}
		maxQty = &q
	}
	if minQty != nil && maxQty != nil && maxQty.LessThan(*minQty) {
		return model.PledgeSession{}, "max_qty must not be below min_qty"
	}
	if req.Capacity < 0 {
		return model.PledgeSession{}, "capacity must not be negative"
	}
	return model.PledgeSession{
		StockSymbol:    symbol,
		Mode:           mode,
		SessionStart:   start,
		SessionEnd:     end,
		MinQty:         minQty,
		MaxQty:         maxQty,
		Capacity:       req.Capacity,
		FeeType:        feeType,
		FeeAmount:      feeAmount,
		CommissionRate: commission,
		AllowAMO:       req.AllowAMO,
		CreatedBy:      adminID,
	}, ""
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, ErrStatusConflict), errors.Is(err, ErrSessionHasPledges):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
