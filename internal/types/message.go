package types

import (
	"time"

	"github.com/notadamking/elemental/internal/errs"
)

type Message struct {
	Base

	ChannelID  string   `json:"channelId"`
	Sender     string   `json:"sender"`
	ContentRef *string  `json:"contentRef,omitempty"`
	Body       *string  `json:"body,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

func (m *Message) ElementBase() *Base { return &m.Base }

func NewMessage(id, creator string, now time.Time, channelID, sender string) *Message {
	return &Message{
		Base: Base{
			ID:        id,
			Kind:      KindMessage,
			CreatedAt: now,
			UpdatedAt: now,
			CreatedBy: creator,
		},
		ChannelID: channelID,
		Sender:    sender,
	}
}

func (m *Message) Validate() error {
	if m.ChannelID == "" {
		return errs.Validation("types.Message.Validate", errs.ReasonMissingRequiredField, "channelId is required", nil)
	}
	if m.Sender == "" {
		return errs.Validation("types.Message.Validate", errs.ReasonMissingRequiredField, "sender is required", nil)
	}
	if m.ContentRef == nil && m.Body == nil {
		return errs.Validation("types.Message.Validate", errs.ReasonMissingRequiredField, "message requires a contentRef or inline body", nil)
	}
	return nil
}
