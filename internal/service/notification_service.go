package service

import (
	"log/slog"
	"strconv"

	"carelink/internal/observability/metrics"
	"carelink/internal/realtime"
)

// NotificationService pushes out-of-band events to a user's active
// connection. Delivery is fire-and-forget: offline users miss the event and
// nothing is queued or retried.
type NotificationService struct {
	hub *realtime.Hub
	log *slog.Logger
}

func NewNotificationService(hub *realtime.Hub, log *slog.Logger) *NotificationService {
	return &NotificationService{hub: hub, log: log}
}

// Notify sends event to userID and reports whether a connection took it.
func (s *NotificationService) Notify(userID, event string, payload any) bool {
	delivered := s.hub.SendTo(userID, event, payload)
	metrics.NotificationsTotal.WithLabelValues(event, strconv.FormatBool(delivered)).Inc()
	if !delivered {
		s.log.Debug("notification dropped, user offline", "user_id", userID, "event", event)
	}
	return delivered
}

// Push sends a generic notification of the given type, e.g.
// "appointment_created". fields are flattened next to "type".
func (s *NotificationService) Push(userID, notificationType string, fields map[string]any) bool {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["type"] = notificationType

	delivered := s.hub.SendTo(userID, realtime.EventNotification, body)
	metrics.NotificationsTotal.WithLabelValues(notificationType, strconv.FormatBool(delivered)).Inc()
	return delivered
}
