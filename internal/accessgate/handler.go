package accessgate

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"stockpledge/internal/httputil"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type submitRequest struct {
	BrokerageAccountID string `json:"brokerage_account_id"`
	Broker             string `json:"broker"`
	Experience         string `json:"experience"`
	Income             string `json:"income"`
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request, userID string) {
	var req submitRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	broker := strings.ToLower(strings.TrimSpace(req.Broker))
	if broker == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "broker is required"})
		return
	}
	created, err := h.svc.SubmitRequest(r.Context(), SubmitInput{
		UserID:     userID,
		AccountID:  req.BrokerageAccountID,
		Broker:     broker,
		Experience: req.Experience,
		Income:     req.Income,
	})
	if err != nil {
		httputil.WriteJSON(w, statusForSubmitError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request, userID string) {
	reqs, err := h.svc.ListByUser(r.Context(), userID)
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load access requests"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (h *Handler) AdminListPending(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.svc.ListPending(r.Context())
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load pending requests"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// AdminReview expects the admin user ID to be resolved by the admin auth
// middleware before the router hands the request over.
func (h *Handler) AdminReview(w http.ResponseWriter, r *http.Request, adminID string) {
	requestID := chi.URLParam(r, "requestID")
	var req reviewRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	if !req.Approve && strings.TrimSpace(req.Reason) == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "reason is required when rejecting"})
		return
	}
	reviewed, err := h.svc.Review(r.Context(), requestID, adminID, req.Approve, req.Reason)
	if err != nil {
		httputil.WriteJSON(w, statusForReviewError(err), httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reviewed)
}

func statusForSubmitError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAccountID):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicatePendingRequest), errors.Is(err, ErrAccountAlreadyLinked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func statusForReviewError(err error) int {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyReviewed), errors.Is(err, ErrAccountAlreadyLinked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
