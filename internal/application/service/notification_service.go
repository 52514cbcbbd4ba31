package service

import (
	"context"
	"fmt"

	"github.com/garyjia/office-requisition/internal/application/dispatcher"
	"github.com/garyjia/office-requisition/internal/application/port"
	"github.com/garyjia/office-requisition/internal/domain/event"
)

// NotificationService tells offices about requisition transitions that need their attention
type NotificationService interface {
	// Register subscribes the service to requisition events
	Register(d dispatcher.Dispatcher)

	// HandleEvent sends the message for one requisition event
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	sender    port.MessageSender
	receivers map[string]string
	logger    Logger
}

// NewNotificationService creates a NotificationService. receivers maps office
// IDs to messaging receiver IDs; offices without a receiver are skipped.
func NewNotificationService(sender port.MessageSender, receivers map[string]string, logger Logger) NotificationService {
	if receivers == nil {
		receivers = map[string]string{}
	}
	return &notificationServiceImpl{
		sender:    sender,
		receivers: receivers,
		logger:    logger,
	}
}

var notifiedEvents = []event.Type{
	event.TypeRequisitionCreated,
	event.TypeRequisitionApproved,
	event.TypeRequisitionRejected,
	event.TypeRequisitionFulfilled,
	event.TypeRequisitionConfirmed,
	event.TypeRequisitionCancelled,
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeMany(notifiedEvents, "office-notifier", s.HandleEvent)
}

func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	office, message := s.compose(evt)
	if office == "" {
		return nil
	}

	receiver, ok := s.receivers[office]
	if !ok {
		s.logger.Info("No receiver configured for office, skipping notification",
			"office_id", office,
			"requisition_id", evt.RequisitionID,
			"event_type", evt.Type,
		)
		return nil
	}

	if err := s.sender.SendMessage(ctx, receiver, message); err != nil {
		s.logger.Error("Failed to send notification",
			"error", err,
			"office_id", office,
			"requisition_id", evt.RequisitionID,
			"event_type", evt.Type,
		)
		return fmt.Errorf("send message: %w", err)
	}

	s.logger.Info("Notification sent",
		"office_id", office,
		"requisition_id", evt.RequisitionID,
		"event_type", evt.Type,
	)
	return nil
}

// compose picks the office to notify and the text to send
func (s *notificationServiceImpl) compose(evt *event.Event) (string, string) {
	id := evt.RequisitionID
	item := evt.GetPayloadString(event.KeyItemID)
	qty := evt.GetPayloadInt(event.KeyQuantity)
	actor := evt.GetPayloadString(event.KeyActor)
	requesting := evt.GetPayloadString(event.KeyRequestingOffice)
	parent := evt.GetPayloadString(event.KeyParentOffice)
	remarks := evt.GetPayloadString(event.KeyRemarks)

	switch evt.Type {
	case event.TypeRequisitionCreated:
		return parent, withRemarks(fmt.Sprintf("New requisition #%d from %s: %d x %s (requested by %s)", id, requesting, qty, item, actor), remarks)
	case event.TypeRequisitionApproved:
		return requesting, withRemarks(fmt.Sprintf("Requisition #%d for %s approved: %d granted by %s", id, item, qty, actor), remarks)
	case event.TypeRequisitionRejected:
		return requesting, withRemarks(fmt.Sprintf("Requisition #%d for %s rejected by %s", id, item, actor), remarks)
	case event.TypeRequisitionFulfilled:
		return requesting, fmt.Sprintf("Requisition #%d for %s: %d unit(s) dispatched by %s, status %s", id, item, qty, actor, evt.GetPayloadString(event.KeyStatus))
	case event.TypeRequisitionConfirmed:
		return parent, withRemarks(fmt.Sprintf("Requisition #%d for %s confirmed received by %s", id, item, actor), remarks)
	case event.TypeRequisitionCancelled:
		return requesting, withRemarks(fmt.Sprintf("Requisition #%d for %s cancelled by %s", id, item, actor), remarks)
	default:
		return "", ""
	}
}

func withRemarks(msg, remarks string) string {
	if remarks == "" {
		return msg
	}
	return msg + ": " + remarks
}
