package bootstrap

import (
	"context"
	"log"
	"slices"

	"campus-assistant-be/internal/config"
	"campus-assistant-be/internal/controller"
	"campus-assistant-be/internal/pkg/logger"
	"campus-assistant-be/internal/pkg/metrics"
	"campus-assistant-be/internal/repository/memory"
	"campus-assistant-be/internal/service"
	"campus-assistant-be/internal/worker"
	"campus-assistant-be/pkg/ai/router"
	"campus-assistant-be/pkg/audit"
	"campus-assistant-be/pkg/knowledge"
	"campus-assistant-be/pkg/llm/factory"
	"campus-assistant-be/pkg/rag/retriever"
	"campus-assistant-be/pkg/usage"

	pktNats "campus-assistant-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Container struct {
	Logger  logger.ILogger
	Metrics *metrics.Metrics

	AssistantService    service.IAssistantService
	AssistantController controller.IAssistantController

	// Background services, started by main
	ConsumerService service.IConsumerService
	MemorySweeper   *worker.MemorySweeper

	Dispatcher *router.Dispatcher

	closers []func()
}

func NewContainer(cfg *config.Config) *Container {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	appMetrics := metrics.New()

	// 2. Knowledge and memory
	index := knowledge.Load(knowledge.NewFileSource(cfg.Knowledge.Path))
	if err := index.Err(); err != nil {
		sysLogger.Warn("BOOTSTRAP", "knowledge base unavailable, answering without references", map[string]interface{}{
			"path":  cfg.Knowledge.Path,
			"error": err.Error(),
		})
	} else {
		log.Printf("[INFO] Loaded %d knowledge chunks from %s", index.Len(), cfg.Knowledge.Path)
	}
	contextRetriever := retriever.NewRetriever(index, cfg.Knowledge.MaxChunks, sysLogger)
	sessionRepo := memory.NewSessionRepository()

	// 3. Model providers
	providers := factory.NewProviders(cfg.Ai, cfg.Keys)

	primaryModels := cfg.Ai.OllamaModels
	if cfg.Ai.OllamaModel != "" && !slices.Contains(primaryModels, cfg.Ai.OllamaModel) {
		primaryModels = append(slices.Clone(primaryModels), cfg.Ai.OllamaModel)
	}
	catalog := router.NewCatalog(primaryModels, cfg.Ai.OllamaVisionModels)

	dispatcher := router.NewDispatcher(
		router.Config{
			DefaultModel:   cfg.Ai.OllamaModel,
			PrimaryURL:     cfg.Ai.OllamaBaseURL,
			PrimaryEnabled: cfg.Ai.OllamaEnabled,
			Timeout:        cfg.Ai.ProviderTimeout,
			ProbeTimeout:   cfg.Ai.ProbeTimeout,
		},
		catalog,
		providers.Primary,
		providers.OpenAI,
		providers.Claude,
		sysLogger,
		appMetrics,
	)
	if dispatcher.Probe(context.Background()) {
		log.Printf("[INFO] Using primary provider at %s (%s)", cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaModel)
	} else {
		log.Printf("[WARN] Primary provider at %s is unavailable, cloud models only", cfg.Ai.OllamaBaseURL)
	}

	// 4. Event buses
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	var closers []func()
	closers = append(closers, func() { _ = pubSub.Close() })

	var sink audit.EventSink
	if cfg.Events.NatsEnabled {
		natsPub, err := pktNats.NewPublisher(cfg.Events.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			sink = natsPub
			closers = append(closers, natsPub.Close)
		}
	}
	auditPublisher := audit.NewNatsPublisher(sink, sysLogger)

	// 5. Services
	usageTracker := usage.NewTracker(sysLogger)
	publisherService := service.NewPublisherService(cfg.Events.Topic, pubSub)
	consumerService := service.NewConsumerService(pubSub, cfg.Events.Topic, usageTracker, sysLogger)

	assistantService := service.NewAssistantService(service.AssistantDeps{
		Retriever:  contextRetriever,
		Sessions:   sessionRepo,
		Dispatcher: dispatcher,
		Publisher:  publisherService,
		Audit:      auditPublisher,
		Usage:      usageTracker,
		Observer:   appMetrics,
		Logger:     sysLogger,
	})

	sweeper, err := worker.NewMemorySweeper(
		cfg.Memory.SweepCron,
		cfg.Memory.TTL,
		sessionRepo,
		auditPublisher,
		appMetrics,
		sysLogger,
	)
	if err != nil {
		log.Fatalf("[FATAL] Invalid MEMORY_SWEEP_CRON: %v", err)
	}

	return &Container{
		Logger:              sysLogger,
		Metrics:             appMetrics,
		AssistantService:    assistantService,
		AssistantController: controller.NewAssistantController(assistantService),
		ConsumerService:     consumerService,
		MemorySweeper:       sweeper,
		Dispatcher:          dispatcher,
		closers:             closers,
	}
}

// Close releases bus connections and flushes the logger.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
