package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"campus-assistant-be/internal/constant"
	"campus-assistant-be/pkg/llm/claude"
	"campus-assistant-be/pkg/llm/ollama"
	"campus-assistant-be/pkg/llm/openai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type generateCall struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Stream bool     `json:"stream"`
	Images []string `json:"images"`
}

// fakeOllama records /api/generate calls and answers them via respond.
type fakeOllama struct {
	mu      sync.Mutex
	calls   []generateCall
	respond func(model string) (int, string)
	tagsOK  bool
	delay   time.Duration
	server  *httptest.Server
}

func newFakeOllama(t *testing.T, respond func(model string) (int, string)) *fakeOllama {
	t.Helper()
	f := &fakeOllama{respond: respond, tagsOK: true}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeOllama) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/tags":
		if !f.tagsOK {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llava:latest"},{"name":"qwen2.5vl:latest"}]}`))
	case "/api/generate":
		var call generateCall
		_ = json.NewDecoder(r.Body).Decode(&call)
		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()

		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-r.Context().Done():
				return
			}
		}
		status, body := f.respond(call.Model)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeOllama) Calls() []generateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]generateCall(nil), f.calls...)
}

func answer(text string) (int, string) {
	b, _ := json.Marshal(map[string]interface{}{"response": text, "done": true})
	return http.StatusOK, string(b)
}

func modelNotFound(model string) (int, string) {
	return http.StatusNotFound, `{"error":"model \"` + model + `\" not found, try pulling it first"}`
}

type countingServer struct {
	mu     sync.Mutex
	hits   int
	header http.Header
	body   map[string]interface{}
	reply  string
	server *httptest.Server
}

func newCountingServer(t *testing.T, reply string) *countingServer {
	t.Helper()
	c := &countingServer{reply: reply}
	c.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.hits++
		c.header = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&c.body)
		c.mu.Unlock()
		_, _ = w.Write([]byte(c.reply))
	}))
	t.Cleanup(c.server.Close)
	return c
}

func (c *countingServer) Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

type recordedObservation struct {
	provider, model, outcome string
}

type fakeRecorder struct {
	mu  sync.Mutex
	obs []recordedObservation
}

func (r *fakeRecorder) ObserveDispatch(provider, model, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, recordedObservation{provider, model, outcome})
}

var (
	testPrimaryModels = []string{"llava", "bakllava", "qwen2.5", "qwen2.5vl:7b", "llava:34b"}
	testVisionModels  = []string{"llava", "bakllava", "qwen2.5vl:7b", "llava:34b"}
)

type dispatcherDeps struct {
	primaryURL string
	openAIKey  string
	openAIURL  string
	claudeKey  string
	claudeURL  string
	timeout    time.Duration
	recorder   Recorder
}

func newTestDispatcher(t *testing.T, deps dispatcherDeps) *Dispatcher {
	t.Helper()
	if deps.timeout == 0 {
		deps.timeout = 5 * time.Second
	}
	if deps.openAIURL == "" {
		deps.openAIURL = "http://127.0.0.1:1"
	}
	if deps.claudeURL == "" {
		deps.claudeURL = "http://127.0.0.1:1"
	}
	d := NewDispatcher(
		Config{
			DefaultModel:   "llava",
			PrimaryURL:     deps.primaryURL,
			PrimaryEnabled: deps.primaryURL != "",
			Timeout:        deps.timeout,
			ProbeTimeout:   time.Second,
		},
		NewCatalog(testPrimaryModels, testVisionModels),
		ollama.NewOllamaProvider(deps.primaryURL, "llava", deps.timeout),
		openai.NewOpenAIProvider(deps.openAIKey, deps.openAIURL, "gpt-4o", deps.timeout),
		claude.NewClaudeProvider(deps.claudeKey, deps.claudeURL, "claude-3-5-sonnet-20241022", deps.timeout),
		nil,
		deps.recorder,
	)
	d.Probe(context.Background())
	return d
}

func TestDispatchTaggedModelNotFoundRetriesOnce(t *testing.T) {
	tests := []struct {
		name        string
		bareReply   func() (int, string)
		wantText    string
		wantOutcome string
	}{
		{
			name:        "bare name succeeds",
			bareReply:   func() (int, string) { return answer("請點選選課系統") },
			wantText:    "請點選選課系統",
			wantOutcome: OutcomeFallbackSuccess,
		},
		{
			name: "bare name fails",
			bareReply: func() (int, string) {
				return http.StatusInternalServerError, `{"error":"runner crashed"}`
			},
			wantText:    "Ollama 回應失敗 (500): runner crashed",
			wantOutcome: OutcomeError,
		},
		{
			name:        "bare name also not found",
			bareReply:   func() (int, string) { return modelNotFound("qwen2.5vl") },
			wantText:    "Ollama 回應失敗 (404)",
			wantOutcome: OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeOllama(t, func(model string) (int, string) {
				if model == "qwen2.5vl:7b" {
					return modelNotFound(model)
				}
				return tt.bareReply()
			})
			d := newTestDispatcher(t, dispatcherDeps{primaryURL: fake.server.URL})

			res := d.Dispatch(context.Background(), ModelRequest{
				Question: "怎麼選課",
				Image:    []byte("png-bytes"),
				Model:    "qwen2.5vl:7b",
			})

			calls := fake.Calls()
			require.Len(t, calls, 2)
			assert.Equal(t, "qwen2.5vl:7b", calls[0].Model)
			assert.Equal(t, "qwen2.5vl", calls[1].Model)
			assert.Len(t, calls[1].Images, 1, "retry keeps vision shaping")

			assert.Contains(t, res.Text, tt.wantText)
			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, "qwen2.5vl", res.Model)
			assert.True(t, res.Retried)
		})
	}
}

func TestDispatchDoesNotRetry(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		respond func(model string) (int, string)
	}{
		{
			name:    "untagged name not found",
			model:   "llava",
			respond: func(model string) (int, string) { return modelNotFound(model) },
		},
		{
			name:  "tagged name, 404 without model in body",
			model: "llava:34b",
			respond: func(string) (int, string) {
				return http.StatusNotFound, `{"error":"page not found"}`
			},
		},
		{
			name:  "tagged name, other status",
			model: "llava:34b",
			respond: func(string) (int, string) {
				return http.StatusBadRequest, `{"error":"model is busy"}`
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeOllama(t, tt.respond)
			d := newTestDispatcher(t, dispatcherDeps{primaryURL: fake.server.URL})

			res := d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img"), Model: tt.model})

			assert.Len(t, fake.Calls(), 1)
			assert.False(t, res.Retried)
			assert.Equal(t, OutcomeError, res.Outcome)
			assert.True(t, strings.HasPrefix(res.Text, "Ollama 回應失敗"))
		})
	}
}

func TestDispatchRequestShaping(t *testing.T) {
	tests := []struct {
		name       string
		model      string
		wantImages int
	}{
		{name: "vision model carries image", model: "llava", wantImages: 1},
		{name: "text model omits image", model: "qwen2.5", wantImages: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeOllama(t, func(string) (int, string) { return answer("ok") })
			d := newTestDispatcher(t, dispatcherDeps{primaryURL: fake.server.URL})

			res := d.Dispatch(context.Background(), ModelRequest{Question: "怎麼查成績", Image: []byte("img"), Model: tt.model})
			require.Equal(t, OutcomeSuccess, res.Outcome)

			calls := fake.Calls()
			require.Len(t, calls, 1)
			assert.Len(t, calls[0].Images, tt.wantImages)
			assert.False(t, calls[0].Stream)
			assert.True(t, strings.HasPrefix(calls[0].Prompt, constant.CampusSystemPrompt))
			assert.Contains(t, calls[0].Prompt, constant.QuestionLabel+"怎麼查成績")
		})
	}
}

func TestDispatchUnconfiguredCloudMakesNoCall(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		wantText string
	}{
		{name: "openai", model: constant.ModelGPT, wantText: constant.MsgOpenAIKeyMissing},
		{name: "claude", model: constant.ModelClaude, wantText: constant.MsgClaudeKeyMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cloud := newCountingServer(t, `{}`)
			d := newTestDispatcher(t, dispatcherDeps{openAIURL: cloud.server.URL, claudeURL: cloud.server.URL})

			res := d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img"), Model: tt.model})

			assert.Equal(t, tt.wantText, res.Text)
			assert.Equal(t, OutcomeUnavailable, res.Outcome)
			assert.Equal(t, 0, cloud.Hits())
		})
	}
}

func TestDispatchConfiguredCloud(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		cloud := newCountingServer(t, `{"choices":[{"message":{"content":"雲端答案"}}]}`)
		d := newTestDispatcher(t, dispatcherDeps{openAIKey: "sk-test", openAIURL: cloud.server.URL})

		res := d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img"), Model: constant.ModelGPT})

		assert.Equal(t, "雲端答案", res.Text)
		assert.Equal(t, constant.ProviderOpenAI, res.Provider)
		assert.Equal(t, 1, cloud.Hits())
		assert.Equal(t, "Bearer sk-test", cloud.header.Get("Authorization"))
		assert.EqualValues(t, 1024, cloud.body["max_tokens"])
	})

	t.Run("claude", func(t *testing.T) {
		cloud := newCountingServer(t, `{"content":[{"type":"text","text":"Claude 答案"}]}`)
		d := newTestDispatcher(t, dispatcherDeps{claudeKey: "ck-test", claudeURL: cloud.server.URL})

		res := d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img"), Model: constant.ModelClaude})

		assert.Equal(t, "Claude 答案", res.Text)
		assert.Equal(t, 1, cloud.Hits())
		assert.Equal(t, "ck-test", cloud.header.Get("x-api-key"))
		assert.NotEmpty(t, cloud.header.Get("anthropic-version"))
	})
}

func TestDispatchPrimaryUnavailable(t *testing.T) {
	fake := newFakeOllama(t, func(string) (int, string) { return answer("should not be called") })
	fake.tagsOK = false
	d := newTestDispatcher(t, dispatcherDeps{primaryURL: fake.server.URL})
	require.False(t, d.PrimaryAvailable())

	res := d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img"), Model: "llava"})
	assert.Equal(t, constant.MsgOllamaUnavailable, res.Text)

	res = d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img"), Model: "no-such-model"})
	assert.Equal(t, constant.MsgNoModelAvailable, res.Text)
	assert.Equal(t, constant.ProviderNone, res.Provider)

	assert.Empty(t, fake.Calls())

	for _, m := range d.Models() {
		if m.Name == "llava" {
			assert.Equal(t, constant.StatusUnavailable, m.Status)
		}
	}
}

func TestDispatchUnrecognizedUsesDesignatedModel(t *testing.T) {
	fake := newFakeOllama(t, func(string) (int, string) { return answer("ok") })
	d := newTestDispatcher(t, dispatcherDeps{primaryURL: fake.server.URL})

	res := d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img"), Model: "mystery-model"})

	require.Len(t, fake.Calls(), 1)
	assert.Equal(t, "llava", fake.Calls()[0].Model)
	assert.Equal(t, "llava", res.Model)
	assert.Equal(t, "ok", res.Text)
}

func TestSetDefaultModel(t *testing.T) {
	fake := newFakeOllama(t, func(string) (int, string) { return answer("ok") })
	d := newTestDispatcher(t, dispatcherDeps{primaryURL: fake.server.URL})

	err := d.SetDefaultModel("not-a-model")
	assert.ErrorIs(t, err, ErrUnknownModel)
	assert.Equal(t, "llava", d.DefaultModel())

	require.NoError(t, d.SetDefaultModel("qwen2.5"))
	assert.Equal(t, "qwen2.5", d.DefaultModel())

	d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img")})
	require.Len(t, fake.Calls(), 1)
	assert.Equal(t, "qwen2.5", fake.Calls()[0].Model)
}

func TestDispatchPrimaryFailureMessages(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		fake := newFakeOllama(t, func(string) (int, string) { return answer("late") })
		fake.delay = 500 * time.Millisecond
		d := newTestDispatcher(t, dispatcherDeps{primaryURL: fake.server.URL, timeout: 50 * time.Millisecond})

		res := d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img"), Model: "llava"})
		assert.Equal(t, constant.MsgOllamaTimeout, res.Text)
		assert.Equal(t, OutcomeTimeout, res.Outcome)
	})

	t.Run("connection refused", func(t *testing.T) {
		fake := newFakeOllama(t, func(string) (int, string) { return answer("ok") })
		d := newTestDispatcher(t, dispatcherDeps{primaryURL: fake.server.URL})
		require.True(t, d.PrimaryAvailable())

		gone := httptest.NewServer(http.NotFoundHandler())
		goneURL := gone.URL
		gone.Close()
		d.primary = ollama.NewOllamaProvider(goneURL, "llava", time.Second)

		res := d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img"), Model: "llava"})
		assert.Contains(t, res.Text, fake.server.URL)
		assert.Contains(t, res.Text, "ollama serve")
		assert.Equal(t, OutcomeError, res.Outcome)
	})

	t.Run("empty answer", func(t *testing.T) {
		fake := newFakeOllama(t, func(string) (int, string) { return answer("   ") })
		d := newTestDispatcher(t, dispatcherDeps{primaryURL: fake.server.URL})

		res := d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img"), Model: "llava"})
		assert.Equal(t, constant.MsgEmptyAnswer, res.Text)
		assert.Equal(t, OutcomeEmpty, res.Outcome)
	})
}

func TestDispatchRecordsObservation(t *testing.T) {
	fake := newFakeOllama(t, func(string) (int, string) { return answer("ok") })
	rec := &fakeRecorder{}
	d := newTestDispatcher(t, dispatcherDeps{primaryURL: fake.server.URL, recorder: rec})

	d.Dispatch(context.Background(), ModelRequest{Question: "q", Image: []byte("img"), Model: "llava"})

	require.Len(t, rec.obs, 1)
	assert.Equal(t, recordedObservation{constant.ProviderOllama, "llava", OutcomeSuccess}, rec.obs[0])
}

func TestModelsListing(t *testing.T) {
	fake := newFakeOllama(t, func(string) (int, string) { return answer("ok") })
	d := newTestDispatcher(t, dispatcherDeps{primaryURL: fake.server.URL, openAIKey: "sk-test"})

	byName := map[string]ModelStatus{}
	for _, m := range d.Models() {
		byName[m.Name] = m
	}

	require.Contains(t, byName, "llava")
	assert.Equal(t, constant.StatusAvailable, byName["llava"].Status)
	assert.Equal(t, constant.LocationLocal, byName["llava"].Location)
	assert.Equal(t, fake.server.URL, byName["llava"].URL)

	assert.Equal(t, constant.StatusAvailable, byName[constant.ModelGPT].Status)
	assert.Equal(t, constant.StatusUnconfigured, byName[constant.ModelClaude].Status)
	assert.Equal(t, constant.LocationCloud, byName[constant.ModelClaude].Location)
}

func TestBareModelName(t *testing.T) {
	tests := []struct {
		in         string
		wantBare   string
		wantTagged bool
	}{
		{"qwen2.5vl:7b", "qwen2.5vl", true},
		{"llava", "llava", false},
		{":7b", ":7b", false},
		{"a:b:c", "a", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			bare, tagged := bareModelName(tt.in)
			assert.Equal(t, tt.wantBare, bare)
			assert.Equal(t, tt.wantTagged, tagged)
		})
	}
}
