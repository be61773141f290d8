package execution

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"stockpledge/internal/httputil"
	"stockpledge/internal/model"
)

type Handler struct {
	engine *Engine
	store  Store
}

func NewHandler(engine *Engine, store Store) *Handler {
	return &Handler{engine: engine, store: store}
}

type executeRequest struct {
	MarketPrice string `json:"market_price"`
}

func (h *Handler) ExecuteBuy(w http.ResponseWriter, r *http.Request, adminID string) {
	price, ok := h.readPrice(w, r)
	if !ok {
		return
	}
	rec, err := h.engine.ExecuteBuyLeg(r.Context(), adminID, chi.URLParam(r, "pledgeID"), price)
	if err != nil {
		httputil.WriteJSON(w, statusForExecError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) ExecuteNow(w http.ResponseWriter, r *http.Request, adminID string) {
	price, ok := h.readPrice(w, r)
	if !ok {
		return
	}
	rec, err := h.engine.ExecuteNow(r.Context(), adminID, chi.URLParam(r, "pledgeID"), price)
	if err != nil {
		httputil.WriteJSON(w, statusForExecError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request, adminID string) {
	h.autoSellOp(w, r, h.engine.Pause, adminID)
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request, adminID string) {
	h.autoSellOp(w, r, h.engine.Resume, adminID)
}

func (h *Handler) CancelAutoSell(w http.ResponseWriter, r *http.Request, adminID string) {
	h.autoSellOp(w, r, h.engine.CancelAutoSell, adminID)
}

func (h *Handler) autoSellOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, adminID, pledgeID string) error, adminID string) {
	if err := op(r.Context(), adminID, chi.URLParam(r, "pledgeID")); err != nil {
		httputil.WriteJSON(w, statusForExecError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type changeTargetRequest struct {
	SellPrice string `json:"sell_price"`
}

func (h *Handler) ChangeTarget(w http.ResponseWriter, r *http.Request, adminID string) {
	var req changeTargetRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	price, err := decimal.NewFromString(req.SellPrice)
	if err != nil || !price.IsPositive() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid sell_price"})
		return
	}
	if err := h.engine.ChangeTarget(r.Context(), adminID, chi.URLParam(r, "pledgeID"), price); err != nil {
		httputil.WriteJSON(w, statusForExecError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "sell_price": price.String()})
}

func (h *Handler) ExecuteSession(w http.ResponseWriter, r *http.Request, adminID string) {
	price, ok := h.readPrice(w, r)
	if !ok {
		return
	}
	res, err := h.engine.ExecuteSession(r.Context(), adminID, chi.URLParam(r, "sessionID"), price)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// Executions lists the records for one pledge, oldest first.
func (h *Handler) Executions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ExecutionsForPledge(r.Context(), chi.URLParam(r, "pledgeID"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load executions"})
		return
	}
	if recs == nil {
		recs = []model.ExecutionRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"executions": recs})
}

// ListMine lists every execution across the user's pledges, newest first.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request, userID string) {
	recs, err := h.store.ExecutionsForUser(r.Context(), userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load executions"})
		return
	}
	if recs == nil {
		recs = []model.ExecutionRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"executions": recs})
}

// Position marks an open cycle against the live price from ?live_price=.
func (h *Handler) Position(w http.ResponseWriter, r *http.Request) {
	price, err := decimal.NewFromString(r.URL.Query().Get("live_price"))
	if err != nil || !price.IsPositive() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid live_price"})
		return
	}
	pos, err := h.engine.PositionView(r.Context(), chi.URLParam(r, "pledgeID"), price)
	if err != nil {
		httputil.WriteJSON(w, statusForExecError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pos)
}

func (h *Handler) readPrice(w http.ResponseWriter, r *http.Request) (decimal.Decimal, bool) {
	var req executeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(req.MarketPrice)
	if err != nil || !price.IsPositive() {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid market_price"})
		return decimal.Decimal{}, false
	}
	return price, true
}

func statusForExecError(err error) int {
	switch {
	case errors.Is(err, ErrPledgeNotFound), errors.Is(err, ErrExecutionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExecuting):
		return http.StatusConflict
	case errors.Is(err, ErrNotExecutable), errors.Is(err, ErrAutoSellDisabled), errors.Is(err, ErrNoBuyLeg):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
