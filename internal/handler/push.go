package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/push"
	"github.com/dukerupert/kinship/internal/store"
)

const maxDeviceName = 100

type PushHandler struct {
	subs    *store.PushStore
	service *push.Service
	logger  *slog.Logger
}

// NewPushHandler builds the handler. svc is nil when VAPID keys are not
// configured; subscriptions are still stored but nothing is sent.
func NewPushHandler(ps *store.PushStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{subs: ps, service: svc, logger: logger.With("component", "push")}
}

// subscribeRequest is PushSubscription.toJSON() from the browser plus an
// optional label.
type subscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
	DeviceName string `json:"device_name" validate:"max=100"`
}

// deviceLabel falls back to the User-Agent so the subscription list shows
// something recognisable.
func deviceLabel(name, userAgent string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if len(userAgent) > maxDeviceName {
		userAgent = userAgent[:maxDeviceName]
	}
	return userAgent
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decode(w, r, &req) {
		return
	}

	sub, err := h.subs.CreateSubscription(
		auth.UserID(r.Context()), req.Endpoint, req.Keys.P256dh, req.Keys.Auth,
		deviceLabel(req.DeviceName, r.UserAgent()),
	)
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}. Only the
// caller's own subscriptions are touched.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.subs.DeleteSubscription(id, auth.UserID(r.Context())); err != nil {
		h.logger.Error("delete push subscription", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.subs.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if list == nil {
		list = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

type testPushResult struct {
	Sent    int `json:"sent"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// TestNotification handles POST /api/push/test. It sends one message to
// each of the caller's devices and prunes endpoints the push service has
// forgotten.
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	list, err := h.subs.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	payload := push.Payload{
		Title: "Kinship",
		Body:  "Notifications from the family tree will appear here.",
		URL:   "/notifications",
		Tag:   "test",
	}
	var res testPushResult
	for i := range list {
		sub := &list[i]
		switch err := h.service.Send(r.Context(), sub, payload, model.PriorityNormal); {
		case err == nil:
			res.Sent++
		case errors.Is(err, push.ErrExpired):
			res.Expired++
			if err := h.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
				h.logger.Error("delete expired subscription", "id", sub.ID, "error", err)
			}
		default:
			res.Failed++
			h.logger.Warn("test push failed", "id", sub.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, res)
}
