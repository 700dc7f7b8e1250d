package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
)

type blockedRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason"`
}

type blockedItem struct {
	ID        string `json:"id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason,omitempty"`
	Active    bool   `json:"active"`
}

func toBlockedItem(b model.BlockedInterval) blockedItem {
	return blockedItem{
		ID:        b.ID,
		StartTime: b.Start.UTC().Format(time.RFC3339),
		EndTime:   b.End.UTC().Format(time.RFC3339),
		Reason:    b.Reason,
		Active:    b.Active,
	}
}

// BlockedIntervals lists active blackouts on GET and creates one on POST.
func (h *Handler) BlockedIntervals(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodGet {
		h.listBlocked(w, r)
		return
	}

	var req blockedRequest
	if !decode(w, r, &req) {
		return
	}
	start, err1 := time.Parse(time.RFC3339, req.StartTime)
	end, err2 := time.Parse(time.RFC3339, req.EndTime)
	if err1 != nil || err2 != nil {
		httpx.WriteError(w, http.StatusBadRequest, "start_time and end_time must be RFC3339", "")
		return
	}
	b, err := h.svc.CreateBlocked(r.Context(), model.BlockedInterval{Start: start, End: end, Reason: strings.TrimSpace(req.Reason)})
	if err != nil {
		h.fail(w, "create blocked interval", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toBlockedItem(b))
}

func (h *Handler) listBlocked(w http.ResponseWriter, r *http.Request) {
	from := h.now()
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid from", "")
			return
		}
		from = t
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	blocks, err := h.svc.ListBlocked(r.Context(), from, limit)
	if err != nil {
		h.fail(w, "list blocked intervals", err)
		return
	}
	items := make([]blockedItem, 0, len(blocks))
	for _, b := range blocks {
		items = append(items, toBlockedItem(b))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"blocked_intervals": items})
}

func (h *Handler) DeactivateBlocked(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		ID string `json:"id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "id is required", "")
		return
	}
	if err := h.svc.DeactivateBlocked(r.Context(), strings.TrimSpace(req.ID)); err != nil {
		h.fail(w, "deactivate blocked interval", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
