package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"campus-assistant-be/internal/constant"
	"campus-assistant-be/internal/dto"
	"campus-assistant-be/internal/repository/memory"
	"campus-assistant-be/pkg/ai/router"
	"campus-assistant-be/pkg/knowledge"
	"campus-assistant-be/pkg/llm/claude"
	"campus-assistant-be/pkg/llm/ollama"
	"campus-assistant-be/pkg/llm/openai"
	"campus-assistant-be/pkg/rag/retriever"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

type promptCapture struct {
	mu      sync.Mutex
	prompts []string
	models  []string
	reply   string
}

func (p *promptCapture) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

func newPrimaryServer(t *testing.T, reply string) (*httptest.Server, *promptCapture) {
	t.Helper()
	capture := &promptCapture{reply: reply}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llava:latest"}]}`))
		case "/api/generate":
			var body struct {
				Model  string `json:"model"`
				Prompt string `json:"prompt"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			capture.mu.Lock()
			capture.prompts = append(capture.prompts, body.Prompt)
			capture.models = append(capture.models, body.Model)
			capture.mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"response": capture.reply, "done": true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, capture
}

type recordingAudit struct {
	mu      sync.Mutex
	answers int
	cleared []string
	changes [][2]string
}

func (a *recordingAudit) PublishQuestionAnswered(context.Context, string, string, string, string, time.Duration, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers++
}

func (a *recordingAudit) PublishSessionCleared(_ context.Context, sessionID string, _ bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleared = append(a.cleared, sessionID)
}

func (a *recordingAudit) PublishDefaultModelChanged(_ context.Context, from, to string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.changes = append(a.changes, [2]string{from, to})
}

func (a *recordingAudit) PublishSessionsEvicted(context.Context, int, int) {}

type fixture struct {
	svc     IAssistantService
	capture *promptCapture
	repo    *memory.SessionRepository
	audit   *recordingAudit
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	srv, capture := newPrimaryServer(t, reply)

	index := knowledge.Load(knowledge.StaticSource{
		{ID: "course_selection", Keywords: []string{"選課", "加退選"}, Content: "選課請至校務系統 > 選課專區。"},
		{ID: "grades", Keywords: []string{"成績"}, Content: "成績查詢位於學生專區。"},
	})

	dispatcher := router.NewDispatcher(
		router.Config{DefaultModel: "llava", PrimaryURL: srv.URL, PrimaryEnabled: true, Timeout: 5 * time.Second},
		router.NewCatalog([]string{"llava", "qwen2.5"}, []string{"llava"}),
		ollama.NewOllamaProvider(srv.URL, "llava", 5*time.Second),
		openai.NewOpenAIProvider("", "http://127.0.0.1:1", "gpt-4o", time.Second),
		claude.NewClaudeProvider("", "http://127.0.0.1:1", "claude", time.Second),
		nil, nil,
	)
	require.True(t, dispatcher.Probe(context.Background()))

	repo := memory.NewSessionRepository()
	audit := &recordingAudit{}
	svc := NewAssistantService(AssistantDeps{
		Retriever:  retriever.NewRetriever(index, 2, nil),
		Sessions:   repo,
		Dispatcher: dispatcher,
		Audit:      audit,
	})
	return &fixture{svc: svc, capture: capture, repo: repo, audit: audit}
}

func screenshot() string {
	return base64.StdEncoding.EncodeToString(pngHeader)
}

func TestAskMintsSessionAndThreadsHistory(t *testing.T) {
	f := newFixture(t, "請登入校務系統後點選選課專區")
	ctx := context.Background()

	first, err := f.svc.Ask(ctx, &dto.AskRequest{Question: "怎麼選課", Screenshot: screenshot(), Model: "llava"})
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionId)
	assert.Equal(t, "請登入校務系統後點選選課專區", first.Response)
	assert.Equal(t, constant.ProviderOllama, first.Provider)
	assert.Equal(t, 1, first.ReferenceCount)

	prompts := f.capture.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "選課請至校務系統 > 選課專區。")
	assert.NotContains(t, prompts[0], constant.HistoryHeader)

	second, err := f.svc.Ask(ctx, &dto.AskRequest{Question: "那成績呢", Screenshot: screenshot(), Model: "llava", SessionId: first.SessionId})
	require.NoError(t, err)
	assert.Equal(t, first.SessionId, second.SessionId)

	prompts = f.capture.Prompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], constant.HistoryHeader)
	assert.Contains(t, prompts[1], "User: 怎麼選課\nAssistant: 請登入校務系統後點選選課專區")
	assert.Contains(t, prompts[1], "成績查詢位於學生專區。")

	assert.Equal(t, 2, f.audit.answers)
}

func TestAskStatelessKeepsNoHistory(t *testing.T) {
	f := newFixture(t, "ok")
	ctx := context.Background()

	res, err := f.svc.Ask(ctx, &dto.AskRequest{Question: "怎麼選課", Screenshot: screenshot(), Stateless: true})
	require.NoError(t, err)
	assert.Empty(t, res.SessionId)
	assert.Equal(t, "llava", res.ModelUsed)

	_, err = f.svc.Ask(ctx, &dto.AskRequest{Question: "再問一次", Screenshot: screenshot(), Stateless: true})
	require.NoError(t, err)

	prompts := f.capture.Prompts()
	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[1], "怎麼選課")
	assert.Equal(t, 0, f.repo.Len())
}

func TestAskValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     dto.AskRequest
		wantMsg string
	}{
		{name: "empty question", req: dto.AskRequest{Question: "  ", Screenshot: screenshot()}, wantMsg: "問題不能為空"},
		{name: "empty screenshot", req: dto.AskRequest{Question: "q"}, wantMsg: "截圖不能為空"},
		{name: "bad base64", req: dto.AskRequest{Question: "q", Screenshot: "***"}, wantMsg: "截圖格式無效"},
		{name: "data url without comma", req: dto.AskRequest{Question: "q", Screenshot: "data:image/png;base64"}, wantMsg: "截圖格式無效"},
	}

	f := newFixture(t, "ok")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Ask(context.Background(), &tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Message, tt.wantMsg)
		})
	}
	assert.Empty(t, f.capture.Prompts())
}

func TestDecodeScreenshot(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngHeader)
	tests := []struct {
		name string
		in   string
	}{
		{name: "plain", in: encoded},
		{name: "data url", in: "data:image/png;base64," + encoded},
		{name: "unpadded", in: base64.RawStdEncoding.EncodeToString(pngHeader)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := decodeScreenshot(tt.in)
			require.NoError(t, err)
			assert.Equal(t, pngHeader, data)
		})
	}
}

func TestAskProviderFailureIsAnswerText(t *testing.T) {
	f := newFixture(t, "ok")

	res, err := f.svc.Ask(context.Background(), &dto.AskRequest{Question: "q", Screenshot: screenshot(), Model: constant.ModelGPT})
	require.NoError(t, err)
	assert.Equal(t, constant.MsgOpenAIKeyMissing, res.Response)
	assert.Equal(t, router.OutcomeUnavailable, res.Outcome)
}

func TestSetDefaultModel(t *testing.T) {
	f := newFixture(t, "ok")
	ctx := context.Background()

	_, err := f.svc.SetDefaultModel(ctx, &dto.SetDefaultModelRequest{Model: "gpt-5"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	res, err := f.svc.SetDefaultModel(ctx, &dto.SetDefaultModelRequest{Model: "qwen2.5"})
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", res.DefaultModel)
	assert.Equal(t, "llava", res.PreviousModel)
	assert.Equal(t, [][2]string{{"llava", "qwen2.5"}}, f.audit.changes)

	models := f.svc.ListModels(ctx)
	assert.Equal(t, "qwen2.5", models.DefaultModel)
	assert.Contains(t, models.Models, "llava")
	assert.Contains(t, models.Models, constant.ModelClaude)
}

func TestClearSession(t *testing.T) {
	f := newFixture(t, "ok")
	ctx := context.Background()

	first, err := f.svc.Ask(ctx, &dto.AskRequest{Question: "q", Screenshot: screenshot()})
	require.NoError(t, err)

	res, err := f.svc.ClearSession(ctx, &dto.ClearSessionRequest{SessionId: first.SessionId})
	require.NoError(t, err)
	assert.True(t, res.Removed)

	res, err = f.svc.ClearSession(ctx, &dto.ClearSessionRequest{SessionId: first.SessionId})
	require.NoError(t, err)
	assert.False(t, res.Removed)

	_, err = f.svc.ClearSession(ctx, &dto.ClearSessionRequest{SessionId: " "})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{first.SessionId, first.SessionId}, f.audit.cleared)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "ok")
	h := f.svc.Health(context.Background(), "1.2.3")
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "1.2.3", h.Version)
	assert.True(t, h.PrimaryAvailable)
}
