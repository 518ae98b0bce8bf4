package utils

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

// CreateTextMessage creates a WhatsApp text message
func CreateTextMessage(text string) *waE2E.Message {
	return &waE2E.Message{
		Conversation: proto.String(text),
	}
}

// MessageText returns the human readable text carried by msg, or "" when the
// payload has none (stickers, audio, reactions, protocol messages).
func MessageText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	candidates := []string{
		msg.GetConversation(),
		msg.GetExtendedTextMessage().GetText(),
		msg.GetImageMessage().GetCaption(),
		msg.GetVideoMessage().GetCaption(),
		msg.GetButtonsResponseMessage().GetSelectedButtonID(),
		msg.GetListResponseMessage().GetTitle(),
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
