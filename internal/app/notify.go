/**
 * @description
 * Best-effort notification emission. Notifications are created after a ledger
 * mutation has already committed, outside the atomic write; a failure here is
 * logged and swallowed, never propagated, and can never roll back the
 * financial write that triggered it.
 *
 * @dependencies
 * - context, log, time: Standard Go libraries.
 * - github.com/google/uuid: Notification ids.
 * - internal/domain, internal/store, pkg/rabbitmq.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mhs/fees-service/internal/domain"
	"github.com/mhs/fees-service/internal/store"
	"github.com/mhs/fees-service/pkg/rabbitmq"
)

// Notifier persists notification records and publishes a matching broker
// event for external relays. Both paths are fire-and-forget.
type Notifier struct {
	repo     store.Repository
	producer rabbitmq.Publisher
}

// NewNotifier creates a Notifier. producer may be nil.
func NewNotifier(repo store.Repository, producer rabbitmq.Publisher) *Notifier {
	return &Notifier{repo: repo, producer: producer}
}

// Emit creates one notification addressed to a user id, a role, or both.
func (n *Notifier) Emit(ctx context.Context, title, message, kind, userID, role string) {
	if n == nil || n.repo == nil {
		return
	}

	record := domain.Notification{
		ID:        uuid.NewString(),
		Title:     title,
		Message:   message,
		Type:      kind,
		UserID:    userID,
		Role:      role,
		Read:      false,
		CreatedAt: time.Now().UTC(),
	}
	if err := n.repo.CreateNotification(ctx, record); err != nil {
		log.Printf("level=warn component=notifier msg=\"notification write failed\" title=%q err=%v", title, err)
	}

	if n.producer == nil {
		return
	}
	event := rabbitmq.NotificationEvent{
		Title:     title,
		Message:   message,
		Type:      kind,
		UserID:    userID,
		Role:      role,
		Timestamp: record.CreatedAt,
	}
	if err := n.producer.PublishNotificationEvent(ctx, event); err != nil {
		log.Printf("level=warn component=notifier msg=\"notification event publish failed\" title=%q err=%v", title, err)
	}
}
