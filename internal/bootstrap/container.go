package bootstrap

import (
	"context"
	"log"
	"time"

	"exam-proctor-be/internal/config"
	"exam-proctor-be/internal/controller"
	"exam-proctor-be/internal/handler"
	"exam-proctor-be/internal/pkg/logger"
	"exam-proctor-be/internal/pkg/mailer"
	"exam-proctor-be/internal/repository/contract"
	"exam-proctor-be/internal/repository/implementation"
	"exam-proctor-be/internal/repository/memory"
	"exam-proctor-be/internal/service"
	"exam-proctor-be/internal/websocket"
	pktNats "exam-proctor-be/pkg/nats"
	"exam-proctor-be/pkg/proctor/capability"
	"exam-proctor-be/pkg/proctor/evidence"
	"exam-proctor-be/pkg/proctor/monitor"
	"exam-proctor-be/pkg/proctor/registry"
	"exam-proctor-be/pkg/proctor/tracker"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// In-memory monitoring logs are kept this long when no database is configured.
const memoryLogRetention = 24 * time.Hour

type Container struct {
	// Controllers
	ProctorController controller.IProctorController

	// Background Services (Exposed for main.go to run)
	AlertWorker    service.IAlertWorker
	SupervisorFeed *service.SupervisorFeed

	// WebSockets
	MonitoringHandler *handler.MonitoringHandler
	WebSocketHub      *websocket.Hub

	Logger logger.ILogger

	closers []func() error
}

func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	alertLogger := logger.NewIsolatedLogger(cfg.App.AlertLogFilePath)

	policy := cfg.Proctor.ScoringPolicy()
	if err := policy.Validate(); err != nil {
		log.Fatalf("[FATAL] Invalid scoring policy: %v", err)
	}

	caps, err := capability.Build(capability.Config{
		FaceBackend:   cfg.Detectors.FaceBackend,
		ObjectBackend: cfg.Detectors.ObjectBackend,
		AudioBackend:  cfg.Detectors.AudioBackend,
		RemoteURL:     cfg.Detectors.RemoteURL,
		RemoteTimeout: cfg.Detectors.Timeout,
		VoiceLevel:    cfg.Detectors.VoiceLevel,
		AnomalyLevel:  cfg.Detectors.AnomalyLevel,
	})
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize detectors: %v", err)
	}
	log.Printf("[INFO] Detectors: face=%s object=%s audio=%s",
		cfg.Detectors.FaceBackend, cfg.Detectors.ObjectBackend, cfg.Detectors.AudioBackend)

	var emailService mailer.IEmailService
	if cfg.SMTP.Host != "" {
		emailService = mailer.NewEmailService(
			cfg.SMTP.Host,
			cfg.SMTP.Port,
			cfg.SMTP.Email,
			cfg.SMTP.Password,
			cfg.SMTP.SenderName,
		)
	}

	// 2. Alert job queue
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		logger.NewWatermillAdapter(sysLogger, "AlertQueue", cfg.App.Environment != "production"),
	)

	// 3. Infrastructure
	// NATS. Both stay nil interfaces when the broker is unreachable so the
	// supervisor feed falls back to direct delivery.
	var (
		eventPub service.EventPublisher
		eventSub service.EventSubscriber
	)
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}
	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
	}
	if natsPub != nil && natsSub != nil {
		eventPub, eventSub = natsPub, natsSub
	} else {
		if natsPub != nil {
			natsPub.Close()
		}
		if natsSub != nil {
			natsSub.Close()
		}
		natsPub, natsSub = nil, nil
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}

	// WebSocket Hub
	wsHub := websocket.NewHub(rdb, alertLogger)
	go wsHub.Run(ctx)

	// 4. Proctoring engine
	trackerCfg := tracker.DefaultConfig()
	trackerCfg.AbsenceThreshold = cfg.Proctor.AbsenceThreshold
	trackerCfg.Refire = tracker.ParseRefirePolicy(cfg.Proctor.AbsenceRefire)

	sessions := registry.New(registry.Config{
		IdleTimeout:   cfg.Proctor.IdleTimeout,
		SweepInterval: cfg.Proctor.SweepInterval,
		Monitor: monitor.Config{
			HistoryCapacity: cfg.Proctor.HistoryCapacity,
			FrameCapacity:   cfg.Proctor.FrameCapacity,
			Tracker:         trackerCfg,
		},
	}, sysLogger)

	var logRepo contract.MonitoringLogRepository
	if db != nil {
		logRepo = implementation.NewMonitoringLogRepository(db)
	} else {
		log.Printf("[INFO] No database configured, monitoring logs are kept in memory")
		logRepo = memory.NewMonitoringLogRepository(memoryLogRetention)
	}

	retainer := evidence.NewRetainer(evidence.NewDiskStore(cfg.Proctor.EvidenceDir))

	feed := service.NewSupervisorFeed(wsHub, eventPub, eventSub, sysLogger)
	dispatcher := service.NewAlertDispatcher(wsHub, feed, emailService, cfg.SMTP.SupervisorAddresses, alertLogger)
	alertWorker := service.NewAlertWorker(pubSub, cfg.Proctor.AlertTopic, retainer, logRepo, dispatcher, sysLogger)

	proctoringService := service.NewProctoringService(
		sessions,
		caps,
		pubSub,
		feed,
		service.ProctoringOptions{
			Policy:          policy,
			DetectorTimeout: cfg.Detectors.Timeout,
			EnableGaze:      cfg.Proctor.EnableGazeTracing,
			AlertTopic:      cfg.Proctor.AlertTopic,
		},
		sysLogger,
	)

	// 5. Controllers
	c := &Container{
		ProctorController: controller.NewProctorController(proctoringService),
		AlertWorker:       alertWorker,
		SupervisorFeed:    feed,
		MonitoringHandler: handler.NewMonitoringHandler(wsHub, sysLogger),
		WebSocketHub:      wsHub,
		Logger:            sysLogger,
	}
	c.closers = append(c.closers, pubSub.Close, rdb.Close)
	if natsSub != nil {
		c.closers = append(c.closers, func() error { natsSub.Close(); return nil })
	}
	if natsPub != nil {
		c.closers = append(c.closers, func() error { natsPub.Close(); return nil })
	}
	c.closers = append(c.closers, alertLogger.Sync, sysLogger.Sync)
	return c
}

// Close releases brokers and flushes loggers, in that order.
func (c *Container) Close() error {
	var err error
	for _, closeFn := range c.closers {
		err = multierr.Append(err, closeFn())
	}
	return err
}
