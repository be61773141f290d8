package audit

import (
	"net/http"
	"strconv"
	"time"

	"stockpledge/internal/httputil"
)

// Handler exposes the admin-facing ledger endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func filterFromQuery(r *http.Request) Filter {
	q := r.URL.Query()
	f := Filter{
		ActorID:         q.Get("actor_id"),
		StockSymbol:     q.Get("stock_symbol"),
		TargetPledgeID:  q.Get("pledge_id"),
		TargetSessionID: q.Get("session_id"),
	}
	if raw := q.Get("success"); raw != "" {
		if b, err := strconv.ParseBool(raw); err == nil {
			f.Success = &b
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			f.Limit = n
		}
	}
	return f
}

// AdminList returns ledger entries matching the query filters.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request, _ string) {
	entries, err := h.service.List(r.Context(), filterFromQuery(r))
	if err != nil {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load audit log"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// AdminExport streams the filtered ledger as a CSV download.
func (h *Handler) AdminExport(w http.ResponseWriter, r *http.Request, _ string) {
	filename := "pledge-audit-" + time.Now().UTC().Format("20060102-150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := h.service.ExportCSV(r.Context(), w, filterFromQuery(r)); err != nil {
		// Headers are already out; the truncated body is the best signal left.
		return
	}
}

// AdminVerify recomputes the hash chain over the whole ledger.
func (h *Handler) AdminVerify(w http.ResponseWriter, r *http.Request, _ string) {
	count, err := h.service.VerifyLedger(r.Context())
	if err != nil {
		if err == ErrChainBroken {
			httputil.WriteJSON(w, http.StatusConflict, map[string]any{"valid": false, "entries": count})
			return
		}
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "failed to load audit log"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"valid": true, "entries": count})
}
