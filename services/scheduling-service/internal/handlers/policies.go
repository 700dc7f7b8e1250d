package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/md-rashed-zaman/slotkeeper/services/scheduling-service/internal/model"
)

type policyBody struct {
	ClientID              string   `json:"client_id"`
	Remind24h             bool     `json:"remind_24h"`
	Remind2h              bool     `json:"remind_2h"`
	Channels              []string `json:"channels"`
	Timezone              string   `json:"timezone"`
	NotificationsDisabled bool     `json:"notifications_disabled"`
	UpdatedAt             string   `json:"updated_at,omitempty"`
}

func toPolicyBody(p model.ReminderPolicy) policyBody {
	body := policyBody{
		ClientID:              p.ClientID,
		Remind24h:             p.Remind24h,
		Remind2h:              p.Remind2h,
		Channels:              make([]string, 0, len(p.Channels)),
		Timezone:              p.Timezone,
		NotificationsDisabled: p.NotificationsDisabled,
	}
	for _, c := range p.Channels {
		body.Channels = append(body.Channels, string(c))
	}
	if !p.UpdatedAt.IsZero() {
		body.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return body
}

// ReminderPolicy reads (GET ?client_id=) or replaces (PUT) a client's reminder preferences.
func (h *Handler) ReminderPolicy(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	if r.Method == http.MethodGet {
		clientID := strings.TrimSpace(r.URL.Query().Get("client_id"))
		if clientID == "" {
			httpx.WriteError(w, http.StatusBadRequest, "client_id is required", "")
			return
		}
		p, err := h.svc.GetPolicy(r.Context(), clientID)
		if err != nil {
			h.fail(w, "get reminder policy", err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toPolicyBody(p))
		return
	}

	var req policyBody
	if !decode(w, r, &req) {
		return
	}
	p := model.ReminderPolicy{
		ClientID:              strings.TrimSpace(req.ClientID),
		Remind24h:             req.Remind24h,
		Remind2h:              req.Remind2h,
		Timezone:              strings.TrimSpace(req.Timezone),
		NotificationsDisabled: req.NotificationsDisabled,
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	for _, raw := range req.Channels {
		c, err := model.ParseChannel(raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		p.Channels = append(p.Channels, c)
	}
	saved, err := h.svc.SavePolicy(r.Context(), p)
	if err != nil {
		h.fail(w, "save reminder policy", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPolicyBody(saved))
}
