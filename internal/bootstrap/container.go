package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"daw-agent-be/internal/config"
	"daw-agent-be/internal/controller"
	"daw-agent-be/internal/handler"
	"daw-agent-be/internal/pkg/logger"
	"daw-agent-be/internal/pkg/serverutils"
	"daw-agent-be/internal/service"
	"daw-agent-be/internal/websocket"
	"daw-agent-be/pkg/agent/assembler"
	"daw-agent-be/pkg/agent/executor"
	"daw-agent-be/pkg/agent/ledger"
	"daw-agent-be/pkg/agent/pipeline"
	"daw-agent-be/pkg/embedding"
	"daw-agent-be/pkg/events"
	"daw-agent-be/pkg/llm"
	"daw-agent-be/pkg/llm/factory"
	"daw-agent-be/pkg/memory"
	pktNats "daw-agent-be/pkg/nats"
	"daw-agent-be/pkg/project"
	"daw-agent-be/pkg/rag"
	"daw-agent-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	module             = "BOOTSTRAP"
	snapshotTopic      = "memory.snapshot"
	natsPublishTimeout = 2 * time.Second
)

type Container struct {
	// Controllers
	AgentController     controller.IAgentController
	ApprovalController  controller.IApprovalController
	MemoryController    controller.IMemoryController
	KnowledgeController controller.IKnowledgeController
	ProjectController   controller.IProjectController
	EventHandler        *handler.EventHandler
	Auth                fiber.Handler

	// Background services, started by Start.
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub

	Logger logger.ILogger
	Bus    *events.Dispatcher

	memory       *memory.Manager
	retrieval    *rag.Engine
	orchestrator *pipeline.Orchestrator
	blobs        store.BlobStore
	pubSub       *gochannel.GoChannel
	natsPub      *pktNats.Publisher
	rdb          *redis.Client
	cancel       context.CancelFunc
}

// Deps are the externally supplied pieces; zero fields are built from config.
type Deps struct {
	Logger   logger.ILogger
	Streamer llm.Streamer
	Blobs    store.BlobStore
}

func NewContainer(cfg *config.Config, deps Deps) (*Container, error) {
	// 1. Core facades
	sysLogger := deps.Logger
	if sysLogger == nil {
		sysLogger = logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	}

	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			sysLogger.Warn(module, "Failed to parse Redis URL, using it as address", map[string]interface{}{"error": err.Error()})
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			sysLogger.Warn(module, "Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
	}

	blobs := deps.Blobs
	if blobs == nil {
		var err error
		if blobs, err = NewBlobStore(cfg, rdb, sysLogger); err != nil {
			return nil, fmt.Errorf("blob store: %w", err)
		}
	}

	// 2. Providers
	streamer := deps.Streamer
	if streamer == nil {
		var err error
		streamer, err = factory.NewStreamer(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.BaseURL, cfg.LLM.PhaseTimeout)
		if err != nil {
			return nil, fmt.Errorf("llm provider: %w", err)
		}
	}
	sysLogger.Info(module, "Using LLM provider", map[string]interface{}{"provider": cfg.LLM.Provider, "model": cfg.LLM.Model})

	var embedder embedding.Embedder
	if cfg.Embedding.Provider == "ollama" {
		embedder = embedding.NewOllamaProvider(cfg.Embedding.OllamaBaseURL, cfg.Embedding.OllamaModel, cfg.Embedding.Dimension)
	} else {
		embedder = embedding.NewHashEmbedder(cfg.Embedding.Dimension)
	}
	sysLogger.Info(module, "Using embedding provider", map[string]interface{}{"provider": cfg.Embedding.Provider})

	// 3. Agent core
	memCfg := memory.DefaultConfig()
	memCfg.MaxShortTermItems = cfg.Memory.MaxShortTermItems
	memCfg.MaxLongTermItems = cfg.Memory.MaxLongTermItems
	memCfg.MaxTokensPerMemory = cfg.Memory.MaxTokensPerMemory
	memCfg.SnapshotKey = cfg.Memory.SnapshotKey
	memCfg.Retention = cfg.Memory.Retention
	mem := memory.NewManager(memCfg, sysLogger,
		memory.WithSummarizer(llm.NewTextGenerator(streamer, cfg.LLM.Model, cfg.LLM.APIKey)),
		memory.WithEmbedder(embedder),
		memory.WithPersistence(blobs),
	)

	ragCfg := rag.DefaultConfig()
	ragCfg.SimilarityThreshold = cfg.RAG.SimilarityThreshold
	ragCfg.TrackMaxAge = cfg.RAG.TrackMaxAge
	ragCfg.CleanupInterval = cfg.RAG.CleanupInterval
	retrieval := rag.NewEngine(ragCfg, embedder, sysLogger)

	projects := project.NewStore(project.Info{Name: "Untitled", Tempo: 120, Key: "C", TimeSignature: "4/4"})
	approvals := ledger.New(projects, sysLogger)
	exec := executor.New(projects, approvals, retrieval, sysLogger, executor.WithRecorder(mem))
	asm := assembler.New(assembler.Config{
		MaxMemoryTokens: cfg.Agent.MaxMemoryTokens,
		MaxRAGTokens:    cfg.Agent.MaxRAGTokens,
		UseMemory:       cfg.Agent.UseMemorySystem,
		UseRAG:          cfg.Agent.UseRAGSystem,
	}, mem, retrieval, sysLogger)
	orchestrator := pipeline.New(pipeline.Config{
		Model:        cfg.LLM.Model,
		APIKey:       cfg.LLM.APIKey,
		PhaseTimeout: cfg.LLM.PhaseTimeout,
		AutoApprove:  cfg.Agent.AutoApprove,
	}, streamer, asm, approvals, exec, sysLogger, pipeline.WithRecorder(mem))

	// 4. Event bus
	bus := events.NewDispatcher()
	bus.OnPanic = func(e events.Event, recovered interface{}) {
		sysLogger.Error(module, "Event listener panicked", map[string]interface{}{
			"event":     e.EventType(),
			"recovered": fmt.Sprint(recovered),
		})
	}
	bus.Forward(mem.Events())
	bus.Forward(approvals.Events())
	bus.Forward(exec.Events())
	bus.Forward(orchestrator.Events())

	hubLogger := deps.Logger
	if hubLogger == nil {
		hubLogger = logger.NewIsolatedLogger(cfg.App.EventLogFilePath)
	}
	wsHub := websocket.NewHub(rdb, hubLogger)
	bus.Subscribe(wsHub.Listener())

	var natsPub *pktNats.Publisher
	if cfg.App.NatsURL != "" {
		pub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn(module, "Failed to connect to NATS publisher", map[string]interface{}{"error": err.Error()})
		} else {
			natsPub = pub
			publish := pub.Listener(natsPublishTimeout)
			bus.Subscribe(func(e events.Event) {
				// Chunks stay local; the bus carries phase-level events.
				if e.EventType() == events.StreamingChunk {
					return
				}
				publish(e)
			})
		}
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NewStdLogger(false, false))
	publisherService := service.NewPublisherService(snapshotTopic, pubSub)
	consumerService := service.NewConsumerService(pubSub, snapshotTopic, mem, sysLogger)

	// 5. Services
	agentService := service.NewAgentService(orchestrator, projects, mem, publisherService, sysLogger)
	approvalService := service.NewApprovalService(approvals)
	memoryService := service.NewMemoryService(mem, retrieval, publisherService, sysLogger)
	knowledgeService := service.NewKnowledgeService(retrieval)
	projectService := service.NewProjectService(projects)

	// 6. Controllers
	return &Container{
		AgentController:     controller.NewAgentController(agentService, sysLogger),
		ApprovalController:  controller.NewApprovalController(approvalService),
		MemoryController:    controller.NewMemoryController(memoryService),
		KnowledgeController: controller.NewKnowledgeController(knowledgeService),
		ProjectController:   controller.NewProjectController(projectService),
		EventHandler:        handler.NewEventHandler(wsHub, cfg.Keys.JWTSecret, sysLogger),
		Auth:                serverutils.NewJwtMiddleware(cfg.Keys.JWTSecret),

		ConsumerService: consumerService,
		WebSocketHub:    wsHub,
		Logger:          sysLogger,
		Bus:             bus,

		memory:       mem,
		retrieval:    retrieval,
		orchestrator: orchestrator,
		blobs:        blobs,
		pubSub:       pubSub,
		natsPub:      natsPub,
		rdb:          rdb,
	}, nil
}

type Health struct {
	Memory           memory.Stats    `json:"memory"`
	Retrieval        rag.Stats       `json:"retrieval"`
	Agent            pipeline.Status `json:"agent"`
	WebSocketClients int             `json:"websocketClients"`
	NATS             bool            `json:"natsConnected"`
}

// Health reports component counters for the health endpoint.
func (c *Container) Health() Health {
	return Health{
		Memory:           c.memory.Stats(),
		Retrieval:        c.retrieval.Stats(),
		Agent:            c.orchestrator.Status(),
		WebSocketClients: c.WebSocketHub.ClientCount(),
		NATS:             c.natsPub != nil,
	}
}

// Start restores memory, indexes the knowledge catalogue and launches the
// background loops.
func (c *Container) Start(ctx context.Context) error {
	if err := c.memory.Start(ctx); err != nil {
		return fmt.Errorf("start memory: %w", err)
	}
	if err := c.retrieval.Start(ctx); err != nil {
		return fmt.Errorf("start retrieval: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if err := c.ConsumerService.Consume(loopCtx); err != nil {
		cancel()
		return fmt.Errorf("start consumer: %w", err)
	}
	go c.WebSocketHub.Run(loopCtx)

	c.Logger.Info(module, "Container started", nil)
	return nil
}

// Stop persists memory and releases every connection. Every step runs even
// when an earlier one fails; the errors are joined.
func (c *Container) Stop(ctx context.Context) error {
	var errs []error
	if c.cancel != nil {
		c.cancel()
	}
	c.retrieval.Stop()
	if err := c.memory.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop memory: %w", err))
	}
	if err := c.pubSub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pubsub: %w", err))
	}
	if err := c.blobs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close blob store: %w", err))
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.rdb != nil {
		if err := c.rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	c.Logger.Sync()
	return errors.Join(errs...)
}
