package bootstrap

import (
	"context"
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"clinical-dss-be/internal/broadcaster"
	"clinical-dss-be/internal/config"
	"clinical-dss-be/internal/constant"
	"clinical-dss-be/internal/controller"
	"clinical-dss-be/internal/evidence"
	"clinical-dss-be/internal/guard"
	"clinical-dss-be/internal/pipeline"
	"clinical-dss-be/internal/pkg/logger"
	"clinical-dss-be/internal/pkg/mailer"
	"clinical-dss-be/internal/repository/implementation"
	"clinical-dss-be/internal/service"
	"clinical-dss-be/internal/session"
	"clinical-dss-be/internal/websocket"
	"clinical-dss-be/pkg/clinical"
	"clinical-dss-be/pkg/embedding"
	"clinical-dss-be/pkg/literature"
	pktNats "clinical-dss-be/pkg/nats"
)

type Container struct {
	// Controllers
	PipelineController controller.IPipelineController
	HealthController   controller.IHealthController

	// Services
	PipelineService service.IPipelineService
	HealthService   service.IHealthService

	// WebSockets & event delivery
	Hub         *websocket.Hub
	Broadcaster *broadcaster.Broadcaster

	// Held for shutdown
	NatsPublisher *pktNats.Publisher
	Logger        logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	emailService := mailer.NewEmailService(
		sysLogger,
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.SenderName,
		cfg.SMTP.OperatorEmail,
	)

	// 2. Event bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 2.5 Infrastructure
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Printf("[WARN] Redis unavailable, cross-instance delivery disabled: %v", err)
		rdb = nil
	}

	// 3. Collaborator clients and their guards
	extractor := clinical.NewHTTPExtractor(cfg.Collaborators.EntityExtractionURL)
	searcher := literature.NewHTTPSearcher(cfg.Collaborators.LiteratureBaseURL, cfg.Collaborators.LiteratureAPIKey)
	embedder := embedding.NewHTTPProvider(cfg.Collaborators.EmbeddingBaseURL, cfg.Collaborators.EmbeddingModel)
	paperRepo := implementation.NewEvidencePaperRepository(db)

	guardCfg := guard.Config{
		RatePerSecond:  cfg.Pipeline.RateLimitPerSecond,
		Burst:          cfg.Pipeline.RateBurst,
		MaxConcurrent:  cfg.Pipeline.MaxConcurrentCalls,
		BreakThreshold: cfg.Pipeline.BreakerThreshold,
		BreakCooldown:  cfg.Pipeline.BreakerCooldown,
	}
	guards := map[string]*guard.Guard{
		constant.CollaboratorEntityExtraction: guard.NewGuard(constant.CollaboratorEntityExtraction, guardCfg),
		constant.CollaboratorLiterature:       guard.NewGuard(constant.CollaboratorLiterature, guardCfg),
		constant.CollaboratorEmbedding:        guard.NewGuard(constant.CollaboratorEmbedding, guardCfg),
		constant.CollaboratorVectorStore:      guard.NewGuard(constant.CollaboratorVectorStore, guardCfg),
	}

	// 4. Pipeline core
	cache := evidence.NewCache(cfg.Pipeline.CacheTTL)

	var audit pipeline.AuditPublisher
	if natsPub != nil {
		audit = natsPub
	}

	orchestrator := pipeline.NewOrchestrator(
		sysLogger,
		cfg.Pipeline,
		cache,
		extractor,
		searcher,
		embedder,
		paperRepo,
		guards,
		pubSub,
		audit,
		emailService,
	)

	// 5. Sessions, hub and broadcaster
	registry := session.NewRegistry(sysLogger, cfg.Pipeline.SessionTTL, cfg.Pipeline.RunRetention, cfg.Pipeline.MaxRunsPerSession)

	// Event delivery logs to its own file so per-event noise stays out of
	// the main application log.
	wsLogger := logger.NewIsolatedLogger("logs/events.log")

	hub := websocket.NewHub(rdb, wsLogger)
	bcast := broadcaster.NewBroadcaster(wsLogger, pubSub, hub, cfg.Pipeline.EventBufferSize)

	hub.SetLifecycleHooks(
		func(sessionId string) {
			registry.Admit(sessionId)
			bcast.Flush(sessionId)
		},
		func(sessionId string) {
			registry.Release(sessionId)
		},
	)
	registry.SetOnRelease(bcast.Drop)

	if err := bcast.Start(context.Background()); err != nil {
		log.Fatalf("[FATAL] Failed to start broadcaster: %v", err)
	}
	go hub.Run()

	// 6. Services and controllers
	healthService := service.NewHealthService(db, rdb, guards, registry)
	pipelineService := service.NewPipelineService(sysLogger, registry, orchestrator, healthService)

	return &Container{
		PipelineController: controller.NewPipelineController(pipelineService),
		HealthController:   controller.NewHealthController(healthService),
		PipelineService:    pipelineService,
		HealthService:      healthService,
		Hub:                hub,
		Broadcaster:        bcast,
		NatsPublisher:      natsPub,
		Logger:             sysLogger,
	}
}
