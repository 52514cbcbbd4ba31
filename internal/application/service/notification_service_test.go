package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/office-requisition/internal/application/dispatcher"
	"github.com/garyjia/office-requisition/internal/domain/event"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendMessage(ctx context.Context, receiverID string, content string) error {
	args := m.Called(ctx, receiverID, content)
	return args.Error(0)
}

var testReceivers = map[string]string{
	"office-central": "oc_central",
	"office-physics": "ou_physics",
}

func requisitionEvent(t event.Type, qty int, remarks string) *event.Event {
	return event.NewEvent(t, 9, map[string]interface{}{
		event.KeyItemID:           "item-laptop",
		event.KeyRequestingOffice: "office-physics",
		event.KeyParentOffice:     "office-central",
		event.KeyActor:            "bob",
		event.KeyQuantity:         qty,
		event.KeyRemarks:          remarks,
		event.KeyStatus:           "PARTIALLY_FULFILLED",
	})
}

func TestNotificationService_RoutesToOffice(t *testing.T) {
	tests := []struct {
		name     string
		evt      *event.Event
		receiver string
		message  string
	}{
		{
			name:     "created goes to parent office",
			evt:      requisitionEvent(event.TypeRequisitionCreated, 3, "for the lab"),
			receiver: "oc_central",
			message:  "New requisition #9 from office-physics: 3 x item-laptop (requested by bob): for the lab",
		},
		{
			name:     "approved goes to requesting office",
			evt:      requisitionEvent(event.TypeRequisitionApproved, 2, ""),
			receiver: "ou_physics",
			message:  "Requisition #9 for item-laptop approved: 2 granted by bob",
		},
		{
			name:     "fulfilled goes to requesting office",
			evt:      requisitionEvent(event.TypeRequisitionFulfilled, 1, "i1"),
			receiver: "ou_physics",
			message:  "Requisition #9 for item-laptop: 1 unit(s) dispatched by bob, status PARTIALLY_FULFILLED",
		},
		{
			name:     "confirmed goes to parent office",
			evt:      requisitionEvent(event.TypeRequisitionConfirmed, 0, ""),
			receiver: "oc_central",
			message:  "Requisition #9 for item-laptop confirmed received by bob",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockSender{}
			sender.On("SendMessage", mock.Anything, tt.receiver, tt.message).Return(nil).Once()

			svc := NewNotificationService(sender, testReceivers, &mockLogger{})
			require.NoError(t, svc.HandleEvent(context.Background(), tt.evt))

			sender.AssertExpectations(t)
		})
	}
}

func TestNotificationService_SkipsUnknownOffice(t *testing.T) {
	sender := &mockSender{}
	svc := NewNotificationService(sender, map[string]string{}, &mockLogger{})

	require.NoError(t, svc.HandleEvent(context.Background(), requisitionEvent(event.TypeRequisitionRejected, 0, "")))
	require.NoError(t, svc.HandleEvent(context.Background(), event.NewEvent(event.TypeMovementApplied, 9, nil)))

	sender.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotificationService_SendFailure(t *testing.T) {
	sender := &mockSender{}
	sender.On("SendMessage", mock.Anything, "ou_physics", mock.Anything).Return(errors.New("rate limited"))

	svc := NewNotificationService(sender, testReceivers, &mockLogger{})
	err := svc.HandleEvent(context.Background(), requisitionEvent(event.TypeRequisitionCancelled, 0, "budget"))
	assert.ErrorContains(t, err, "rate limited")
}

func TestNotificationService_Register(t *testing.T) {
	d := dispatcher.NewDispatcher()
	NewNotificationService(&mockSender{}, nil, &mockLogger{}).Register(d)

	for _, typ := range notifiedEvents {
		handlers := d.ListHandlers(typ)
		require.Len(t, handlers, 1, typ.String())
		assert.Equal(t, "office-notifier", handlers[0].Name)
	}
	assert.Empty(t, d.ListHandlers(event.TypeMovementApplied))
}
