package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"campus-assistant-be/internal/constant"
	"campus-assistant-be/internal/pkg/logger"
	"campus-assistant-be/pkg/llm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const logModule = "ROUTER"

// ErrUnknownModel is returned by SetDefaultModel for names outside the catalog.
var ErrUnknownModel = errors.New("unknown model")

// Dispatch outcomes, used for logs, metrics and usage accounting.
const (
	OutcomeSuccess         = "success"
	OutcomeFallbackSuccess = "fallback_success"
	OutcomeEmpty           = "empty"
	OutcomeUnavailable     = "unavailable"
	OutcomeTimeout         = "timeout"
	OutcomeError           = "error"
)

// PrimaryProvider is the local multi-model backend. ListModels doubles as
// the connectivity probe.
type PrimaryProvider interface {
	llm.VisionProvider
	ListModels(ctx context.Context) ([]string, error)
}

// Recorder receives one observation per dispatch.
type Recorder interface {
	ObserveDispatch(provider, model, outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDispatch(string, string, string, time.Duration) {}

type Config struct {
	DefaultModel   string // designated primary model, also used for unrecognized names
	PrimaryURL     string
	PrimaryEnabled bool
	Timeout        time.Duration
	ProbeTimeout   time.Duration
}

type ModelRequest struct {
	Question string // fully composed prompt body
	Image    []byte
	Model    string // empty means the current default
}

type ModelResult struct {
	Text     string
	Provider string
	Model    string
	Elapsed  time.Duration
	Outcome  string
	Retried  bool
}

// Succeeded reports whether Text is a model answer rather than an
// explanatory failure message.
func (r ModelResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeFallbackSuccess
}

// ModelStatus is one row of the model listing.
type ModelStatus struct {
	Name        string
	Label       string
	Status      string
	Description string
	Location    string
	URL         string
	Vision      bool
}

type cloudRoute struct {
	provider   llm.VisionProvider
	name       string
	display    string
	missingMsg string
}

// Dispatcher routes a request to a provider and turns every failure into
// answer text. Apart from the current default model it holds no per-call state.
type Dispatcher struct {
	cfg      Config
	catalog  *Catalog
	primary  PrimaryProvider
	clouds   map[Route]cloudRoute
	logger   logger.ILogger
	recorder Recorder
	tracer   trace.Tracer

	primaryUp atomic.Bool

	mu           sync.RWMutex
	defaultModel string
}

func NewDispatcher(
	cfg Config,
	catalog *Catalog,
	primary PrimaryProvider,
	openAI llm.VisionProvider,
	claude llm.VisionProvider,
	log logger.ILogger,
	recorder Recorder,
) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Dispatcher{
		cfg:     cfg,
		catalog: catalog,
		primary: primary,
		clouds: map[Route]cloudRoute{
			RouteCloudA: {provider: openAI, name: constant.ProviderOpenAI, display: "OpenAI", missingMsg: constant.MsgOpenAIKeyMissing},
			RouteCloudB: {provider: claude, name: constant.ProviderClaude, display: "Claude", missingMsg: constant.MsgClaudeKeyMissing},
		},
		logger:       log,
		recorder:     recorder,
		tracer:       otel.Tracer("campus-assistant-be/router"),
		defaultModel: cfg.DefaultModel,
	}
}

// Probe checks primary connectivity and records the result. A failed probe
// is not fatal; primary requests short-circuit to an unavailable message
// until the next successful probe.
func (d *Dispatcher) Probe(ctx context.Context) bool {
	if !d.cfg.PrimaryEnabled || d.primary == nil {
		d.primaryUp.Store(false)
		d.logger.Info(logModule, "primary provider disabled", nil)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	models, err := d.primary.ListModels(ctx)
	if err != nil {
		d.primaryUp.Store(false)
		d.logger.Warn(logModule, "primary provider unreachable", map[string]interface{}{
			"url":   d.cfg.PrimaryURL,
			"error": err.Error(),
		})
		return false
	}

	d.primaryUp.Store(true)
	d.logger.Info(logModule, "primary provider connected", map[string]interface{}{
		"url":    d.cfg.PrimaryURL,
		"models": models,
	})
	return true
}

func (d *Dispatcher) PrimaryAvailable() bool {
	return d.primaryUp.Load()
}

func (d *Dispatcher) DefaultModel() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.defaultModel
}

// SetDefaultModel changes the model used when a request names none.
func (d *Dispatcher) SetDefaultModel(name string) error {
	if _, ok := d.catalog.Lookup(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	d.mu.Lock()
	previous := d.defaultModel
	d.defaultModel = name
	d.mu.Unlock()

	d.logger.Info(logModule, "default model changed", map[string]interface{}{
		"from": previous,
		"to":   name,
	})
	return nil
}

// Models lists every recognized model with its current availability.
func (d *Dispatcher) Models() []ModelStatus {
	specs := d.catalog.Specs()
	out := make([]ModelStatus, 0, len(specs))
	for _, spec := range specs {
		status := ModelStatus{
			Name:        spec.Name,
			Label:       spec.Label,
			Description: spec.Description,
			Vision:      spec.Vision,
			Status:      constant.StatusUnconfigured,
		}
		switch spec.Route {
		case RoutePrimary:
			status.Location = constant.LocationLocal
			status.URL = d.cfg.PrimaryURL
			status.Status = constant.StatusUnavailable
			if d.PrimaryAvailable() {
				status.Status = constant.StatusAvailable
			}
		default:
			status.Location = constant.LocationCloud
			if cloud, ok := d.clouds[spec.Route]; ok && cloud.provider != nil && cloud.provider.Configured() {
				status.Status = constant.StatusAvailable
			}
		}
		out = append(out, status)
	}
	return out
}

// Dispatch sends one request. It never fails: provider errors come back as
// explanatory answer text with a non-success Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, req ModelRequest) ModelResult {
	start := time.Now()

	name := strings.TrimSpace(req.Model)
	if name == "" {
		name = d.DefaultModel()
	}
	spec, _ := d.catalog.Lookup(name)

	ctx, span := d.tracer.Start(ctx, "router.Dispatch", trace.WithAttributes(
		attribute.String("model.requested", name),
		attribute.String("model.route", spec.Route.String()),
		attribute.Bool("request.has_image", len(req.Image) > 0),
	))
	defer span.End()

	var res ModelResult
	switch spec.Route {
	case RoutePrimary:
		res = d.dispatchPrimary(ctx, spec, req)
	case RouteCloudA, RouteCloudB:
		res = d.dispatchCloud(ctx, d.clouds[spec.Route], spec, req)
	default:
		res = d.dispatchUnrecognized(ctx, name, req)
	}
	res.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.String("model.used", res.Model),
		attribute.String("provider", res.Provider),
		attribute.String("outcome", res.Outcome),
		attribute.Bool("retried", res.Retried),
	)
	if !res.Succeeded() {
		span.SetStatus(codes.Error, res.Outcome)
	}
	d.recorder.ObserveDispatch(res.Provider, res.Model, res.Outcome, res.Elapsed)

	d.logger.Info(logModule, "dispatch finished", map[string]interface{}{
		"requested":  name,
		"model":      res.Model,
		"provider":   res.Provider,
		"outcome":    res.Outcome,
		"retried":    res.Retried,
		"elapsed_ms": res.Elapsed.Milliseconds(),
	})
	return res
}

func (d *Dispatcher) dispatchUnrecognized(ctx context.Context, name string, req ModelRequest) ModelResult {
	if !d.PrimaryAvailable() || d.cfg.DefaultModel == "" {
		return ModelResult{
			Text:     constant.MsgNoModelAvailable,
			Provider: constant.ProviderNone,
			Model:    name,
			Outcome:  OutcomeUnavailable,
		}
	}

	fallback, ok := d.catalog.Lookup(d.cfg.DefaultModel)
	if !ok || fallback.Route != RoutePrimary {
		// Not listed: treat the designated model as vision capable.
		fallback = ModelSpec{Name: d.cfg.DefaultModel, Route: RoutePrimary, Vision: true}
	}
	d.logger.Warn(logModule, "unrecognized model, using designated primary model", map[string]interface{}{
		"requested": name,
		"fallback":  fallback.Name,
	})
	return d.dispatchPrimary(ctx, fallback, req)
}

// dispatchPrimary runs the two-state policy: one attempt, plus exactly one
// bare-name retry when a tagged name is reported not found.
func (d *Dispatcher) dispatchPrimary(ctx context.Context, spec ModelSpec, req ModelRequest) ModelResult {
	if !d.PrimaryAvailable() {
		return ModelResult{
			Text:     constant.MsgOllamaUnavailable,
			Provider: constant.ProviderOllama,
			Model:    spec.Name,
			Outcome:  OutcomeUnavailable,
		}
	}

	text, err := d.callPrimary(ctx, spec.Name, spec.Vision, req)
	if err == nil {
		return primaryAnswer(text, spec.Name, OutcomeSuccess)
	}

	bare, tagged := bareModelName(spec.Name)
	if !llm.IsModelNotFound(err) || !tagged {
		return d.primaryFailure(spec.Name, err)
	}

	d.logger.Warn(logModule, "model not found, retrying with bare name", map[string]interface{}{
		"model":    spec.Name,
		"fallback": bare,
	})
	text, err = d.callPrimary(ctx, bare, spec.Vision, req)
	var res ModelResult
	if err == nil {
		res = primaryAnswer(text, bare, OutcomeFallbackSuccess)
	} else {
		res = d.primaryFailure(bare, err)
	}
	res.Retried = true
	return res
}

func (d *Dispatcher) callPrimary(ctx context.Context, model string, vision bool, req ModelRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	r := llm.Request{
		Model:  model,
		Prompt: constant.CampusSystemPrompt + "\n\n" + constant.QuestionLabel + req.Question,
	}
	// Text-only models never receive the image.
	if vision && len(req.Image) > 0 {
		r.Images = [][]byte{req.Image}
	}
	return d.primary.Generate(ctx, r)
}

func primaryAnswer(text, model, outcome string) ModelResult {
	res := ModelResult{
		Text:     strings.TrimSpace(text),
		Provider: constant.ProviderOllama,
		Model:    model,
		Outcome:  outcome,
	}
	if res.Text == "" {
		res.Text = constant.MsgEmptyAnswer
		res.Outcome = OutcomeEmpty
	}
	return res
}

func (d *Dispatcher) primaryFailure(model string, err error) ModelResult {
	res := ModelResult{Provider: constant.ProviderOllama, Model: model, Outcome: OutcomeError}

	var statusErr *llm.StatusError
	switch {
	case llm.IsTimeout(err):
		res.Text = constant.MsgOllamaTimeout
		res.Outcome = OutcomeTimeout
	case errors.As(err, &statusErr):
		detail := statusErr.Message
		if detail == "" {
			detail = statusErr.Body
		}
		res.Text = fmt.Sprintf(constant.MsgOllamaStatusFmt, statusErr.StatusCode, snippet(detail))
	case llm.IsConnectionError(err):
		res.Text = fmt.Sprintf(constant.MsgOllamaConnectFmt, d.cfg.PrimaryURL)
	default:
		res.Text = fmt.Sprintf(constant.MsgOllamaErrorFmt, snippet(err.Error()))
	}

	d.logger.Error(logModule, "primary provider call failed", map[string]interface{}{
		"model":   model,
		"outcome": res.Outcome,
		"error":   snippet(err.Error()),
	})
	return res
}

func (d *Dispatcher) dispatchCloud(ctx context.Context, route cloudRoute, spec ModelSpec, req ModelRequest) ModelResult {
	res := ModelResult{Provider: route.name, Model: spec.Name}

	// Credential check happens before any I/O.
	if route.provider == nil || !route.provider.Configured() {
		res.Text = route.missingMsg
		res.Outcome = OutcomeUnavailable
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	r := llm.Request{
		System: constant.CloudSystemPrompt,
		Prompt: constant.CloudQuestionLabel + req.Question,
	}
	if len(req.Image) > 0 {
		r.Images = [][]byte{req.Image}
	}

	text, err := route.provider.Generate(ctx, r)
	switch {
	case err == nil:
		res.Text = strings.TrimSpace(text)
		res.Outcome = OutcomeSuccess
		if res.Text == "" {
			res.Text = constant.MsgEmptyAnswer
			res.Outcome = OutcomeEmpty
		}
		return res
	case errors.Is(err, llm.ErrMissingCredential):
		res.Text = route.missingMsg
		res.Outcome = OutcomeUnavailable
		return res
	case llm.IsTimeout(err):
		res.Text = fmt.Sprintf(constant.MsgCloudTimeoutFmt, route.display)
		res.Outcome = OutcomeTimeout
	default:
		res.Text = fmt.Sprintf(constant.MsgCloudErrorFmt, route.display, snippet(err.Error()))
		res.Outcome = OutcomeError
	}

	d.logger.Error(logModule, "cloud provider call failed", map[string]interface{}{
		"provider": route.name,
		"outcome":  res.Outcome,
		"error":    snippet(err.Error()),
	})
	return res
}

func snippet(s string) string {
	runes := []rune(s)
	if len(runes) <= constant.ErrorBodySnippetLimit {
		return s
	}
	return string(runes[:constant.ErrorBodySnippetLimit])
}
