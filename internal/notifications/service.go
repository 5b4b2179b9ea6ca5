package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commune-portal/admin-portal-backend/pkg/workflows"
)

// Service stores in-app notifications and pushes them to connected
// websocket clients. It satisfies the Notifier interface of the request
// workflow.
type Service struct {
	repo   Repository
	hub    *Hub
	logger *zap.Logger
}

func NewService(repo Repository, hub *Hub, logger *zap.Logger) *Service {
	return &Service{repo: repo, hub: hub, logger: logger}
}

// Notify records the notification and pushes it over websocket when the
// user is connected. Never fails the calling workflow: errors are logged
// and swallowed.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, subject, body string) {
	n := &Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Warn("Failed to store notification",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	s.hub.SendToUser(userID, Message{
		Type:      MessageTypeNotification,
		Subject:   subject,
		Body:      body,
		Timestamp: n.CreatedAt,
	})
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	items, err := s.repo.ListForUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, &workflows.StorageError{Op: "list notifications", Err: err}
	}
	return items, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	updated, err := s.repo.MarkRead(ctx, id, userID)
	if err != nil {
		return &workflows.StorageError{Op: "mark notification read", Err: err}
	}
	if !updated {
		return &workflows.NotFoundError{Resource: "notification", ID: id.String()}
	}
	return nil
}
