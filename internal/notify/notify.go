package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/kinship/internal/metrics"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/push"
	"github.com/dukerupert/kinship/internal/store"
	"github.com/dukerupert/kinship/internal/websocket"
)

const pushTimeout = 15 * time.Second

// Pusher sends one web push message. *push.Service implements it.
type Pusher interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload push.Payload, priority model.Priority) error
}

// Event is the content of a notification before it is addressed.
type Event struct {
	Type       model.NotificationType
	Title      string
	Message    string
	PersonID   int64
	ProposalID int64
	Priority   model.Priority
	ActionURL  string
	// ActorID is the user who caused the event. NotifyAdmins skips them.
	ActorID int64
}

// Service stores notifications and fans them out over WebSocket and, for
// high and urgent priority, web push.
type Service struct {
	notifications *store.NotificationStore
	users         *store.UserStore
	subs          *store.PushStore
	hub           *websocket.Hub
	pusher        Pusher
	metrics       *metrics.Metrics
	logger        *slog.Logger

	wg sync.WaitGroup
}

// NewService wires the delivery channels. hub, pusher and m may be nil.
func NewService(ns *store.NotificationStore, us *store.UserStore, ps *store.PushStore, hub *websocket.Hub, pusher Pusher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		notifications: ns,
		users:         us,
		subs:          ps,
		hub:           hub,
		pusher:        pusher,
		metrics:       m,
		logger:        logger.With("component", "notify"),
	}
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// Notify creates a notification for one recipient and delivers it.
func (s *Service) Notify(ctx context.Context, recipientID int64, ev Event) (*model.Notification, error) {
	n, err := s.notifications.Create(&model.Notification{
		RecipientID:       recipientID,
		Type:              ev.Type,
		Title:             ev.Title,
		Message:           ev.Message,
		RelatedPersonID:   optionalID(ev.PersonID),
		RelatedProposalID: optionalID(ev.ProposalID),
		Priority:          ev.Priority,
		ActionURL:         ev.ActionURL,
		CreatedBy:         optionalID(ev.ActorID),
	})
	if err != nil {
		return nil, err
	}
	s.metrics.NotificationSent("inbox")

	if s.hub != nil {
		msg := websocket.NewMessage("notification", "created", n.ID, map[string]any{
			"title":    n.Title,
			"message":  n.Message,
			"priority": n.Priority,
			"icon":     n.Icon(),
			"url":      n.ActionURL,
		})
		if s.hub.SendToUser(recipientID, msg) > 0 {
			s.metrics.NotificationSent("websocket")
		}
	}

	if s.pusher != nil && (n.Priority == model.PriorityHigh || n.Priority == model.PriorityUrgent) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
			defer cancel()
			s.sendPush(ctx, n)
		}()
	}

	return n, nil
}

// NotifyAdmins addresses ev to every active admin except the actor. Errors
// for individual recipients are logged and the loop continues.
func (s *Service) NotifyAdmins(ctx context.Context, ev Event) int {
	admins, err := s.users.ListAdmins()
	if err != nil {
		s.logger.Error("list admins", "error", err)
		return 0
	}
	sent := 0
	for _, a := range admins {
		if a.ID == ev.ActorID || !a.IsActive {
			continue
		}
		if _, err := s.Notify(ctx, a.ID, ev); err != nil {
			s.logger.Error("notify admin", "user_id", a.ID, "type", ev.Type, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Broadcast tells every open page that an entity changed so it can refresh.
func (s *Service) Broadcast(entity, action string, id int64) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(websocket.NewMessage(entity, action, id, nil))
}

func (s *Service) sendPush(ctx context.Context, n *model.Notification) {
	subs, err := s.subs.ListByUser(n.RecipientID)
	if err != nil {
		s.logger.Error("list push subscriptions", "user_id", n.RecipientID, "error", err)
		return
	}

	payload := push.Payload{
		Title: n.Title,
		Body:  n.Message,
		URL:   n.ActionURL,
		Tag:   string(n.Type),
	}
	for i := range subs {
		sub := &subs[i]
		err := s.pusher.Send(ctx, sub, payload, n.Priority)
		switch {
		case errors.Is(err, push.ErrExpired):
			if err := s.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
				s.logger.Error("delete expired subscription", "id", sub.ID, "error", err)
			} else {
				s.logger.Info("removed expired push subscription", "id", sub.ID, "user_id", sub.UserID)
			}
		case err != nil:
			s.logger.Warn("send push", "id", sub.ID, "user_id", sub.UserID, "error", err)
		default:
			s.metrics.NotificationSent("push")
		}
	}
}

// Wait blocks until in-flight push deliveries finish.
func (s *Service) Wait() {
	s.wg.Wait()
}
