package pledges

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"stockpledge/internal/httputil"
	"stockpledge/internal/model"
	"stockpledge/internal/sessions"
	"stockpledge/internal/types"
)

type Handler struct {
	wf    *Workflow
	store Store
}

func NewHandler(wf *Workflow, store Store) *Handler {
	return &Handler{wf: wf, store: store}
}

type submitPledgeRequest struct {
	Qty         string `json:"qty"`
	PriceTarget string `json:"price_target"`
	RiskAck     struct {
		Market    bool   `json:"market"`
		Execution bool   `json:"execution"`
		Financial bool   `json:"financial"`
		Version   string `json:"version"`
	} `json:"risk_acknowledgment"`
	Consent struct {
		Signature       string `json:"signature"`
		AcceptTerms     bool   `json:"accept_terms"`
		AcceptRisk      bool   `json:"accept_risk"`
		AcceptExecution bool   `json:"accept_execution"`
	} `json:"digital_consent"`
	AutoSell *struct {
		ExecutionType string `json:"execution_type"`
		SellPrice     string `json:"sell_price"`
	} `json:"auto_sell_config"`
	CorrelationID string `json:"correlation_id"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request, userID string) {
	sessionID := chi.URLParam(r, "sessionID")
	var req submitPledgeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	qty, err := decimal.NewFromString(req.Qty)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid qty"})
		return
	}
	price, err := decimal.NewFromString(req.PriceTarget)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid price_target"})
		return
	}
	var autoSell *model.AutoSellConfig
	if req.AutoSell != nil {
		autoSell = &model.AutoSellConfig{Mode: types.AutoSellMode(req.AutoSell.ExecutionType)}
		if req.AutoSell.SellPrice != "" {
			sp, err := decimal.NewFromString(req.AutoSell.SellPrice)
			if err != nil {
				httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid sell_price"})
				return
			}
			autoSell.SellPrice = &sp
		}
	}
	now := time.Now().UTC()
	pledge, err := h.wf.Submit(r.Context(), SubmitRequest{
		UserID:      userID,
		SessionID:   sessionID,
		Qty:         qty,
		PriceTarget: price,
		RiskAck: model.RiskAcknowledgment{
			Market:         req.RiskAck.Market,
			Execution:      req.RiskAck.Execution,
			Financial:      req.RiskAck.Financial,
			Version:        req.RiskAck.Version,
			AcknowledgedAt: now,
		},
		Consent: model.DigitalConsent{
			Signature:       req.Consent.Signature,
			AcceptTerms:     req.Consent.AcceptTerms,
			AcceptRisk:      req.Consent.AcceptRisk,
			AcceptExecution: req.Consent.AcceptExecution,
			SignedAt:        now,
		},
		AutoSell:      autoSell,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		httputil.WriteJSON(w, statusForSubmit(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, pledge)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request, userID string) {
	sessionID := r.URL.Query().Get("session_id")
	pledges, err := h.store.ListByUser(r.Context(), userID, sessionID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load pledges"})
		return
	}
	if pledges == nil {
		pledges = []model.Pledge{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"pledges": pledges})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, userID string) {
	pledge, err := h.store.GetByID(r.Context(), chi.URLParam(r, "pledgeID"))
	if err != nil {
		httputil.WriteJSON(w, statusForSubmit(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if pledge.UserID != userID {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: ErrPledgeNotFound.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pledge)
}

type cancelPledgeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, userID string) {
	var req cancelPledgeRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	pledge, err := h.wf.Cancel(r.Context(), chi.URLParam(r, "pledgeID"), userID, req.Reason)
	if err != nil {
		httputil.WriteJSON(w, statusForSubmit(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pledge)
}

// AdminListBySession lists every pledge in a session for review before
// execution.
func (h *Handler) AdminListBySession(w http.ResponseWriter, r *http.Request) {
	pledges, err := h.store.ListBySession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load pledges"})
		return
	}
	if pledges == nil {
		pledges = []model.Pledge{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"pledges": pledges})
}

func statusForSubmit(err error) int {
	switch {
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrDisclosureIncomplete),
		errors.Is(err, ErrConsentIncomplete):
		return http.StatusBadRequest
	case errors.Is(err, ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrSessionFull),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrPledgeExists),
		errors.Is(err, ErrPledgeNotCancellable):
		return http.StatusConflict
	case errors.Is(err, ErrDematNotApproved):
		return http.StatusForbidden
	case errors.Is(err, ErrPledgeNotFound), errors.Is(err, sessions.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
