package utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

func TestMessageText(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hola")}, "hola"},
		{"extended", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("con link")}}, "con link"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("foto")}}, "foto"},
		{"video caption", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: proto.String("video")}}, "video"},
		{"button reply", &waE2E.Message{ButtonsResponseMessage: &waE2E.ButtonsResponseMessage{SelectedButtonID: proto.String("btn-precio")}}, "btn-precio"},
		{"list reply", &waE2E.Message{ListResponseMessage: &waE2E.ListResponseMessage{Title: proto.String("Horario")}}, "Horario"},
		{"image without caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, ""},
		{"document", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{FileName: proto.String("a.pdf")}}, ""},
		{"conversation wins", &waE2E.Message{
			Conversation:        proto.String("first"),
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("second")},
		}, "first"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MessageText(tt.msg); got != tt.want {
				t.Fatalf("MessageText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCreateTextMessage(t *testing.T) {
	msg := CreateTextMessage("redirect")
	if msg.GetConversation() != "redirect" {
		t.Fatalf("unexpected conversation %q", msg.GetConversation())
	}
}

func TestNewBackOffGrows(t *testing.T) {
	b := NewBackOff(&RetryConfig{InitialInterval: 10 * time.Millisecond, MaxInterval: 40 * time.Millisecond})
	var last time.Duration
	for i := 0; i < 10; i++ {
		d := b.NextBackOff()
		if d <= 0 {
			t.Fatalf("backoff stopped at attempt %d", i)
		}
		if d > 61*time.Millisecond {
			t.Fatalf("backoff %s exceeds max interval with jitter", d)
		}
		last = d
	}
	if last < 20*time.Millisecond {
		t.Fatalf("backoff did not grow, last=%s", last)
	}
}

func TestWithRetryStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	err := WithRetry(ctx, func() error {
		calls++
		return errors.New("boom")
	}, &RetryConfig{InitialInterval: 5 * time.Millisecond, MaxInterval: 10 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls < 2 {
		t.Fatalf("expected several attempts, got %d", calls)
	}
}

func TestSleep(t *testing.T) {
	if !Sleep(context.Background(), time.Millisecond) {
		t.Fatalf("sleep should complete")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Sleep(ctx, time.Hour) {
		t.Fatalf("sleep should abort on cancelled context")
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	logger, closer := NewLogger(LogConfig{Level: "debug", File: path})
	logger.Info().Str("branch", "sucursal1").Msg("connected")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("log file is empty")
	}
}
