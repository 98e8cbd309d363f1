package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garnizeh/medequip/internal/config"
	"github.com/garnizeh/medequip/internal/errs"
	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/ollama"
	"github.com/garnizeh/medequip/pkg/repository"
)

// ChatModel is the language model behind the assistant.
type ChatModel interface {
	Chat(ctx context.Context, model string, messages []models.ChatMessage) (string, error)
}

const assistantPrompt = "You are a helpful assistant for managing and maintaining hospital facilities. " +
	"You provide detailed information and assist with troubleshooting, maintenance requests."

const sessionPromptTemplate = assistantPrompt + `
{{- with .Equipment}}

You are helping with equipment {{.ID}} ({{.Type}}), a {{.Manufacturer}} {{.ModelType}} with serial number {{.SerialNo}}.
It is located in {{.Location}} and its current status is {{.Status}}.
Operating hours: {{printf "%.1f" .OperatingHours}}.
{{- if .LastMaintenanceDate}} Last maintenance: {{.LastMaintenanceDate.Format "2006-01-02"}}.{{end}}
{{- end}}
{{- if .Issues}}

Known issues for this equipment type: {{join .Issues ", "}}.
{{- end}}`

const (
	defaultAssistantTimeout = 90 * time.Second
	defaultHistoryWindow    = 10
	defaultSessionTTL       = 24 * time.Hour
)

type QueryInput struct {
	Prompt string `json:"prompt" validate:"required"`
}

type OpenSessionInput struct {
	EquipmentID string `json:"equipmentId"`
}

type SendMessageInput struct {
	Content string `json:"content" validate:"required"`
}

// Reply is the assistant's answer within a session.
type Reply struct {
	SessionID string             `json:"sessionId"`
	Message   models.ChatMessage `json:"message"`
}

type AssistantService struct {
	base
	model    ChatModel
	sessions repository.SessionRepo
	cfg      config.AssistantConfig
}

func NewAssistantService(d Deps, model ChatModel, sessions repository.SessionRepo, cfg config.AssistantConfig) *AssistantService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAssistantTimeout
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	return &AssistantService{base: newBase(d), model: model, sessions: sessions, cfg: cfg}
}

// Query answers a single prompt without keeping any history.
func (s *AssistantService) Query(ctx context.Context, in QueryInput) (string, error) {
	if err := s.validate.Struct(in); err != nil {
		return "", err
	}

	now := s.clock()
	return s.ask(ctx, "assistant query", []models.ChatMessage{
		{Role: models.RoleSystem, Content: assistantPrompt, Timestamp: now},
		{Role: models.RoleUser, Content: in.Prompt, Timestamp: now},
	})
}

// OpenSession starts a conversation. With an equipment id the system
// message describes that equipment and the issues its type may report.
func (s *AssistantService) OpenSession(ctx context.Context, in OpenSessionInput) (*models.ChatSession, error) {
	storeCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	data := struct {
		Equipment *models.Equipment
		Issues    []string
	}{}
	if in.EquipmentID != "" {
		eq, err := s.store.GetEquipment(storeCtx, in.EquipmentID)
		if err != nil {
			return nil, storeErr("get equipment", "equipment", in.EquipmentID, err)
		}
		data.Equipment = eq
		data.Issues, _ = s.tax.Issues(eq.Type)
	}

	prompt, err := ollama.RenderTemplate(sessionPromptTemplate, data)
	if err != nil {
		return nil, errs.Wrap("render session prompt", err)
	}

	now := s.clock()
	sess := &models.ChatSession{
		SessionID:    uuid.NewString(),
		EquipmentID:  in.EquipmentID,
		Equipment:    data.Equipment,
		Messages:     []models.ChatMessage{{Role: models.RoleSystem, Content: prompt, Timestamp: now}},
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := s.sessions.SaveSession(storeCtx, sess, s.cfg.SessionTTL); err != nil {
		return nil, errs.Wrap("save session", err)
	}

	s.logger.Info("assistant session opened", zap.String("session", sess.SessionID), zap.String("equipment", in.EquipmentID))
	return sess, nil
}

// SendMessage appends a user message, asks the model with the system
// message plus the most recent history, and stores the answer. The
// transcript is trimmed to the same window. Nothing is stored when the
// model call fails.
func (s *AssistantService) SendMessage(ctx context.Context, sessionID string, in SendMessageInput) (*Reply, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	sess.Messages = append(sess.Messages, models.ChatMessage{Role: models.RoleUser, Content: in.Content, Timestamp: s.clock()})
	sess.Messages = s.window(sess.Messages)

	answer, err := s.ask(ctx, "assistant chat", sess.Messages)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	reply := models.ChatMessage{Role: models.RoleAssistant, Content: answer, Timestamp: now}
	sess.Messages = s.window(append(sess.Messages, reply))
	sess.LastActivity = now

	storeCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.sessions.SaveSession(storeCtx, sess, s.cfg.SessionTTL); err != nil {
		return nil, errs.Wrap("save session", err)
	}
	return &Reply{SessionID: sess.SessionID, Message: reply}, nil
}

func (s *AssistantService) GetSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.NotFound("session", sessionID)
	}
	if err != nil {
		return nil, errs.Wrap("get session", err)
	}
	return sess, nil
}

func (s *AssistantService) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.sessions.DeleteSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return errs.NotFound("session", sessionID)
	}
	if err != nil {
		return errs.Wrap("delete session", err)
	}
	return nil
}

// window keeps a leading system message plus the last HistoryWindow
// messages after it.
func (s *AssistantService) window(msgs []models.ChatMessage) []models.ChatMessage {
	var head []models.ChatMessage
	rest := msgs
	if len(msgs) > 0 && msgs[0].Role == models.RoleSystem {
		head, rest = msgs[:1], msgs[1:]
	}
	if len(rest) <= s.cfg.HistoryWindow {
		return msgs
	}
	out := make([]models.ChatMessage, 0, len(head)+s.cfg.HistoryWindow)
	out = append(out, head...)
	return append(out, rest[len(rest)-s.cfg.HistoryWindow:]...)
}

func (s *AssistantService) ask(ctx context.Context, op string, msgs []models.ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	answer, err := s.model.Chat(ctx, s.cfg.Model, msgs)
	if err != nil {
		werr := errs.Wrap(op, err)
		outcome := "error"
		if errs.Is(werr, errs.KindTimeout) {
			outcome = "timeout"
		}
		s.metrics.ModelCall(outcome)
		s.logger.Warn("model call failed", zap.String("op", op), zap.String("model", s.cfg.Model), zap.Error(err))
		return "", werr
	}

	s.metrics.ModelCall("ok")
	s.logger.Debug("model call completed", zap.String("op", op), zap.Duration("latency", time.Since(start)))
	return answer, nil
}
