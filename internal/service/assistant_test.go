package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/garnizeh/medequip/internal/config"
	"github.com/garnizeh/medequip/internal/errs"
	"github.com/garnizeh/medequip/internal/metrics"
	"github.com/garnizeh/medequip/internal/service"
	"github.com/garnizeh/medequip/internal/session"
	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository/mock"
)

func newAssistant(t *testing.T, model *mock.ChatModel, cfg config.AssistantConfig) (*service.AssistantService, *services) {
	t.Helper()
	d := newDeps(t, newStore(t))
	d.Metrics = metrics.New()
	return service.NewAssistantService(d, model, session.NewMemoryStore(), cfg), newServicesWith(t, d)
}

func TestAssistant_Query(t *testing.T) {
	model := &mock.ChatModel{Reply: "Check the battery contacts."}
	a, _ := newAssistant(t, model, config.AssistantConfig{Model: "llama3.2"})

	got, err := a.Query(context.Background(), service.QueryInput{Prompt: "Defibrillator will not charge"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got != "Check the battery contacts." {
		t.Fatalf("reply = %q", got)
	}

	calls := model.Calls()
	if len(calls) != 1 || len(calls[0]) != 2 {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	if calls[0][0].Role != models.RoleSystem || !strings.Contains(calls[0][0].Content, "hospital facilities") {
		t.Fatalf("first message should be the system prompt: %+v", calls[0][0])
	}
	if calls[0][1].Content != "Defibrillator will not charge" {
		t.Fatalf("user prompt = %q", calls[0][1].Content)
	}

	if _, err := a.Query(context.Background(), service.QueryInput{}); !errs.Is(err, errs.KindValidation) {
		t.Fatalf("expected validation error for empty prompt, got %v", err)
	}
}

func TestAssistant_ModelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.Kind
	}{
		{"deadline", fmt.Errorf("chat: %w", context.DeadlineExceeded), errs.KindTimeout},
		{"transport", errors.New("dial tcp 10.0.0.3:11434: connection refused"), errs.KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newAssistant(t, &mock.ChatModel{Err: tt.err}, config.AssistantConfig{})
			_, err := a.Query(context.Background(), service.QueryInput{Prompt: "hi"})
			e, ok := errs.As(err)
			if !ok || e.Kind != tt.kind {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			if strings.Contains(e.Public(), "10.0.0.3") {
				t.Fatalf("public message leaks the cause: %q", e.Public())
			}
		})
	}
}

func TestAssistant_QueryTimeout(t *testing.T) {
	model := &mock.ChatModel{Fn: func(ctx context.Context, _ string, _ []models.ChatMessage) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	a, _ := newAssistant(t, model, config.AssistantConfig{Timeout: 20 * time.Millisecond})

	_, err := a.Query(context.Background(), service.QueryInput{Prompt: "hi"})
	if !errs.Is(err, errs.KindTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestAssistant_SessionWithEquipment(t *testing.T) {
	ctx := context.Background()
	model := &mock.ChatModel{Reply: "Try a new electrode pad."}
	a, s := newAssistant(t, model, config.AssistantConfig{})
	eq := mustCreateEquipment(t, s, "Defibrillator", "SN-42")

	sess, err := a.OpenSession(ctx, service.OpenSessionInput{EquipmentID: eq.ID})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if sess.SessionID == "" || sess.Equipment == nil || sess.Equipment.ID != eq.ID || len(sess.Messages) != 1 {
		t.Fatalf("unexpected session: %+v", sess)
	}
	sys := sess.Messages[0].Content
	for _, want := range []string{eq.ID, "SN-42", "Emergency Room", "Electrode Malfunction"} {
		if !strings.Contains(sys, want) {
			t.Fatalf("system message lacks %q:\n%s", want, sys)
		}
	}

	reply, err := a.SendMessage(ctx, sess.SessionID, service.SendMessageInput{Content: "It shows 'check pads'"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if reply.Message.Role != models.RoleAssistant || reply.Message.Content != "Try a new electrode pad." {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	stored, err := a.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(stored.Messages) != 3 || stored.Messages[1].Role != models.RoleUser || stored.Messages[2].Role != models.RoleAssistant {
		t.Fatalf("unexpected transcript: %+v", stored.Messages)
	}

	if err := a.DeleteSession(ctx, sess.SessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := a.GetSession(ctx, sess.SessionID); !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := a.DeleteSession(ctx, sess.SessionID); !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := a.OpenSession(ctx, service.OpenSessionInput{EquipmentID: "DEF_000001"}); !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found for unknown equipment, got %v", err)
	}
}

func TestAssistant_HistoryWindow(t *testing.T) {
	ctx := context.Background()
	n := 0
	model := &mock.ChatModel{Fn: func(context.Context, string, []models.ChatMessage) (string, error) {
		n++
		return fmt.Sprintf("answer %d", n), nil
	}}
	a, _ := newAssistant(t, model, config.AssistantConfig{HistoryWindow: 4})

	sess, err := a.OpenSession(ctx, service.OpenSessionInput{})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	for i := range 5 {
		if _, err := a.SendMessage(ctx, sess.SessionID, service.SendMessageInput{Content: fmt.Sprintf("question %d", i)}); err != nil {
			t.Fatalf("SendMessage %d: %v", i, err)
		}
	}

	calls := model.Calls()
	last := calls[len(calls)-1]
	if len(last) != 5 || last[0].Role != models.RoleSystem || last[4].Content != "question 4" {
		t.Fatalf("last call should carry system plus 4 messages, got %+v", last)
	}

	stored, _ := a.GetSession(ctx, sess.SessionID)
	if len(stored.Messages) != 5 || stored.Messages[0].Role != models.RoleSystem || stored.Messages[4].Content != "answer 5" {
		t.Fatalf("stored transcript should be bounded, got %+v", stored.Messages)
	}
}

func TestAssistant_FailedCallKeepsTranscript(t *testing.T) {
	ctx := context.Background()
	model := &mock.ChatModel{Reply: "ok"}
	a, _ := newAssistant(t, model, config.AssistantConfig{})

	sess, _ := a.OpenSession(ctx, service.OpenSessionInput{})
	model.Err = errors.New("model unavailable")
	if _, err := a.SendMessage(ctx, sess.SessionID, service.SendMessageInput{Content: "hello"}); !errs.Is(err, errs.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	stored, _ := a.GetSession(ctx, sess.SessionID)
	if len(stored.Messages) != 1 {
		t.Fatalf("failed call must not be stored, have %d messages", len(stored.Messages))
	}

	if _, err := a.SendMessage(ctx, "missing", service.SendMessageInput{Content: "hello"}); !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
