package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/office-requisition/internal/application/port"
)

const defaultReceiveIDType = "open_id"

// messageCreator is the slice of the IM API the messenger needs
type messageCreator interface {
	Create(ctx context.Context, req *larkIm.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error)
}

// Messenger implements port.MessageSender with Lark text messages
type Messenger struct {
	messages      messageCreator
	receiveIDType string
	logger        *zap.Logger
}

// NewMessenger creates a new Lark message sender
func NewMessenger(client *SDKClient, receiveIDType string, logger *zap.Logger) *Messenger {
	return newMessenger(client.GetClient().Im.Message, receiveIDType, logger)
}

func newMessenger(messages messageCreator, receiveIDType string, logger *zap.Logger) *Messenger {
	if receiveIDType == "" {
		receiveIDType = defaultReceiveIDType
	}
	return &Messenger{
		messages:      messages,
		receiveIDType: receiveIDType,
		logger:        logger,
	}
}

// SendMessage sends a text message to a receiver
func (m *Messenger) SendMessage(ctx context.Context, receiverID string, content string) error {
	if receiverID == "" {
		return fmt.Errorf("receiverID cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	body, err := textMessageBody(receiverID, content)
	if err != nil {
		return err
	}
	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType(m.receiveIDType).
		Body(body).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", receiverID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", receiverID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	m.logger.Info("Message sent",
		zap.String("message_id", messageID),
		zap.String("receive_id", receiverID))

	return nil
}

// textMessageBody builds the im.message.create body for a plain text message.
// Uuid makes Lark drop a resend of the same request.
func textMessageBody(receiverID, content string) (*larkIm.CreateMessageReqBody, error) {
	textContent, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal text content: %w", err)
	}
	return larkIm.NewCreateMessageReqBodyBuilder().
		ReceiveId(receiverID).
		MsgType(larkIm.MsgTypeText).
		Content(string(textContent)).
		Uuid(uuid.NewString()).
		Build(), nil
}

// NoopSender logs messages instead of sending them; used when Lark is disabled
type NoopSender struct {
	logger *zap.Logger
}

// NewNoopSender creates a sender that only logs
func NewNoopSender(logger *zap.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// SendMessage logs the message and returns nil
func (n *NoopSender) SendMessage(ctx context.Context, receiverID string, content string) error {
	n.logger.Debug("Lark disabled, message dropped",
		zap.String("receive_id", receiverID),
		zap.Int("length", len(content)))
	return nil
}

var (
	_ port.MessageSender = (*Messenger)(nil)
	_ port.MessageSender = (*NoopSender)(nil)
)
