package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus-assistant-be/internal/dto"
	"campus-assistant-be/internal/pkg/logger"
	"campus-assistant-be/pkg/ai/router"
	"campus-assistant-be/pkg/audit"
	"campus-assistant-be/pkg/llm"
	"campus-assistant-be/pkg/rag/prompt"
	"campus-assistant-be/pkg/store"

	"github.com/google/uuid"
)

const logModule = "ASSISTANT"

// ValidationError is a request-shape failure, surfaced to the caller as a 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string   { return e.Message }
func (e *ValidationError) HTTPStatus() int { return 400 }

var (
	errEmptyQuestion     = &ValidationError{Message: "問題不能為空"}
	errEmptyScreenshot   = &ValidationError{Message: "截圖不能為空"}
	errInvalidScreenshot = &ValidationError{Message: "截圖格式無效，請提供 base64 編碼的圖片"}
	errEmptySessionID    = &ValidationError{Message: "session_id 不能為空"}
)

type Retriever interface {
	Retrieve(question string, maxChunks int) []string
}

type SessionStore interface {
	GetOrCreate(sessionID string) *store.Session
	LoadHistory(session *store.Session) string
	AppendTurn(session *store.Session, userText, assistantText string) error
	Clear(sessionID string) bool
}

type ModelDispatcher interface {
	Dispatch(ctx context.Context, req router.ModelRequest) router.ModelResult
	Models() []router.ModelStatus
	DefaultModel() string
	SetDefaultModel(name string) error
	PrimaryAvailable() bool
}

type RetrievalObserver interface {
	ObserveRetrieval(chunks int)
}

type IAssistantService interface {
	Ask(ctx context.Context, req *dto.AskRequest) (*dto.AskResponse, error)
	ListModels(ctx context.Context) *dto.ListModelsResponse
	SetDefaultModel(ctx context.Context, req *dto.SetDefaultModelRequest) (*dto.SetDefaultModelResponse, error)
	ClearSession(ctx context.Context, req *dto.ClearSessionRequest) (*dto.ClearSessionResponse, error)
	Usage(ctx context.Context) *dto.UsageResponse
	Health(ctx context.Context, version string) *dto.HealthResponse
}

// UsageSnapshotter exposes aggregated usage.
type UsageSnapshotter interface {
	Snapshot() *dto.UsageResponse
}

type AssistantDeps struct {
	Retriever  Retriever
	Sessions   SessionStore
	Dispatcher ModelDispatcher
	Publisher  IPublisherService // in-process bus, may be nil
	Audit      audit.Publisher   // external bus, may be nil
	Usage      UsageSnapshotter  // may be nil
	Observer   RetrievalObserver // may be nil
	Logger     logger.ILogger
}

type assistantService struct {
	retriever  Retriever
	sessions   SessionStore
	dispatcher ModelDispatcher
	publisher  IPublisherService
	audit      audit.Publisher
	usage      UsageSnapshotter
	observer   RetrievalObserver
	logger     logger.ILogger
	now        func() time.Time
}

func NewAssistantService(deps AssistantDeps) IAssistantService {
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	return &assistantService{
		retriever:  deps.Retriever,
		sessions:   deps.Sessions,
		dispatcher: deps.Dispatcher,
		publisher:  deps.Publisher,
		audit:      deps.Audit,
		usage:      deps.Usage,
		observer:   deps.Observer,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

// Ask runs one question through retrieve, compose, dispatch and remember.
// Provider failures are returned as answer text; only request validation
// produces an error.
func (s *assistantService) Ask(ctx context.Context, req *dto.AskRequest) (*dto.AskResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errEmptyQuestion
	}
	image, err := decodeScreenshot(req.Screenshot)
	if err != nil {
		return nil, err
	}
	if !llm.IsImage(image) {
		s.logger.Warn(logModule, "screenshot is not a recognised image format", map[string]interface{}{
			"bytes": len(image),
		})
	}

	// Stateless requests use a transient memory entry and get no id back.
	var sessionID string
	if !req.Stateless {
		sessionID = strings.TrimSpace(req.SessionId)
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
	}

	s.logger.Info(logModule, "question received", map[string]interface{}{
		"question":   truncateRunes(question, 50),
		"model":      req.Model,
		"session_id": sessionID,
	})

	references := s.retriever.Retrieve(question, 0)
	if s.observer != nil {
		s.observer.ObserveRetrieval(len(references))
	}

	session := s.sessions.GetOrCreate(sessionID)
	history := s.sessions.LoadHistory(session)

	composed := prompt.NewContextualBuilder(history, references, question).Build()

	result := s.dispatcher.Dispatch(ctx, router.ModelRequest{
		Question: composed,
		Image:    image,
		Model:    req.Model,
	})

	if err := s.sessions.AppendTurn(session, question, result.Text); err != nil {
		s.logger.Error(logModule, "failed to persist conversation turn", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}

	s.emitAnswered(ctx, sessionID, result, len(references))

	requested := req.Model
	if requested == "" {
		requested = result.Model
	}
	return &dto.AskResponse{
		Response:         result.Text,
		SessionId:        sessionID,
		Model:            requested,
		ModelUsed:        result.Model,
		Provider:         result.Provider,
		Outcome:          result.Outcome,
		ReferenceCount:   len(references),
		ProcessingTimeMs: result.Elapsed.Milliseconds(),
		Timestamp:        s.now(),
	}, nil
}

func (s *assistantService) emitAnswered(ctx context.Context, sessionID string, result router.ModelResult, chunks int) {
	if s.publisher != nil {
		payload, _ := json.Marshal(dto.QuestionAnsweredMessage{
			SessionId:  sessionID,
			Model:      result.Model,
			Provider:   result.Provider,
			Outcome:    result.Outcome,
			Retried:    result.Retried,
			Succeeded:  result.Succeeded(),
			ElapsedMs:  result.Elapsed.Milliseconds(),
			Chunks:     chunks,
			AnsweredAt: s.now(),
		})
		if err := s.publisher.Publish(ctx, payload); err != nil {
			s.logger.Warn(logModule, "failed to publish answered event", map[string]interface{}{"error": err.Error()})
		}
	}
	if s.audit != nil {
		s.audit.PublishQuestionAnswered(ctx, sessionID, result.Model, result.Provider, result.Outcome, result.Elapsed, chunks)
	}
}

func (s *assistantService) ListModels(ctx context.Context) *dto.ListModelsResponse {
	res := &dto.ListModelsResponse{
		Models:       make(map[string]dto.ModelInfo),
		DefaultModel: s.dispatcher.DefaultModel(),
	}
	for _, m := range s.dispatcher.Models() {
		res.Models[m.Name] = dto.ModelInfo{
			Name:        m.Label,
			Status:      m.Status,
			Description: m.Description,
			Location:    m.Location,
			URL:         m.URL,
			Vision:      m.Vision,
		}
	}
	return res
}

func (s *assistantService) SetDefaultModel(ctx context.Context, req *dto.SetDefaultModelRequest) (*dto.SetDefaultModelResponse, error) {
	previous := s.dispatcher.DefaultModel()
	if err := s.dispatcher.SetDefaultModel(strings.TrimSpace(req.Model)); err != nil {
		if errors.Is(err, router.ErrUnknownModel) {
			return nil, &ValidationError{Message: fmt.Sprintf("不支援的模型: %s", req.Model)}
		}
		return nil, err
	}

	current := s.dispatcher.DefaultModel()
	if s.audit != nil {
		s.audit.PublishDefaultModelChanged(ctx, previous, current)
	}
	return &dto.SetDefaultModelResponse{DefaultModel: current, PreviousModel: previous}, nil
}

func (s *assistantService) ClearSession(ctx context.Context, req *dto.ClearSessionRequest) (*dto.ClearSessionResponse, error) {
	sessionID := strings.TrimSpace(req.SessionId)
	if sessionID == "" {
		return nil, errEmptySessionID
	}

	removed := s.sessions.Clear(sessionID)
	s.logger.Info(logModule, "session cleared", map[string]interface{}{
		"session_id": sessionID,
		"removed":    removed,
	})
	if s.audit != nil {
		s.audit.PublishSessionCleared(ctx, sessionID, removed)
	}
	return &dto.ClearSessionResponse{SessionId: sessionID, Removed: removed}, nil
}

func (s *assistantService) Usage(ctx context.Context) *dto.UsageResponse {
	if s.usage == nil {
		return &dto.UsageResponse{Models: []dto.ModelUsage{}}
	}
	return s.usage.Snapshot()
}

func (s *assistantService) Health(ctx context.Context, version string) *dto.HealthResponse {
	return &dto.HealthResponse{
		Status:           "healthy",
		Version:          version,
		PrimaryAvailable: s.dispatcher.PrimaryAvailable(),
		DefaultModel:     s.dispatcher.DefaultModel(),
		Timestamp:        s.now(),
	}
}

// decodeScreenshot accepts plain or data-URL base64, padded or not.
func decodeScreenshot(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errEmptyScreenshot
	}
	if strings.HasPrefix(raw, "data:") {
		i := strings.Index(raw, ",")
		if i < 0 {
			return nil, errInvalidScreenshot
		}
		raw = raw[i+1:]
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
	}
	if err != nil || len(data) == 0 {
		return nil, errInvalidScreenshot
	}
	return data, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
