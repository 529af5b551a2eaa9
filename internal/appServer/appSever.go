package appServer

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/travel-booking/config"
	"github.com/ds124wfegd/travel-booking/internal/database/memory"
	repository "github.com/ds124wfegd/travel-booking/internal/database/postgres"
	cache "github.com/ds124wfegd/travel-booking/internal/database/redis"
	"github.com/ds124wfegd/travel-booking/internal/metrics"
	"github.com/ds124wfegd/travel-booking/internal/service"
	"github.com/ds124wfegd/travel-booking/internal/transport"
	"github.com/ds124wfegd/travel-booking/internal/worker"
	"github.com/ds124wfegd/travel-booking/pkg/auth"
	"github.com/ds124wfegd/travel-booking/pkg/kafka"
	"github.com/ds124wfegd/travel-booking/pkg/postgres"
	"github.com/ds124wfegd/travel-booking/pkg/queue"
	"github.com/ds124wfegd/travel-booking/pkg/rabbitmq"
	redispkg "github.com/ds124wfegd/travel-booking/pkg/redis"
	"github.com/ds124wfegd/travel-booking/pkg/telegram"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// storage is the repository set of the selected driver
type storage struct {
	deps   service.Deps
	checks map[string]transport.HealthCheck
	close  func()
}

func NewServer(cfg *config.Config) {
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStorage(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.close()

	deps := store.deps
	deps.Location = cfg.Location()

	// Redis: booking cache, idempotency keys, task queue
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redispkg.NewRedisClient(&cfg.Redis)
		if err != nil {
			logrus.Errorf("Redis unavailable, continuing without cache and queue: %v", err)
		} else {
			defer redisClient.Close()
			store.checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		}
	}

	if redisClient != nil && cfg.Cache.Enabled {
		deps.Cache = cache.NewBookingCache(redisClient, cfg.Cache.BookingTTL)
		logrus.Info("Booking cache enabled")
	}

	var redisQueue *queue.RedisQueue
	if redisClient != nil && cfg.Queue.Enabled {
		redisQueue = queue.NewRedisQueue(redisClient, &queue.RedisQueueConfig{
			Prefix:     cfg.Queue.Prefix,
			MaxRetries: cfg.Queue.MaxRetries,
			BaseDelay:  cfg.Queue.BaseDelay,
			EnableDLQ:  true,
		}, nil)
		deps.Queue = service.NewQueueAdapter(redisQueue)
	} else {
		logrus.Warn("Task queue disabled, lifecycle events are only logged")
	}

	bookingService := service.NewBookingService(deps)
	paymentService := service.NewPaymentService(deps)

	if redisQueue != nil {
		events, err := openEventBus(cfg)
		if err != nil {
			logrus.Errorf("Event bus unavailable, falling back to log: %v", err)
			events = queue.LogPublisher{}
		}
		defer events.Close()

		var notifier queue.Notifier
		if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
			notifier = telegram.NewBot(cfg.Telegram.BotToken)
			logrus.Info("Telegram bot initialized")
		} else {
			logrus.Warn("Telegram bot disabled, notifications are not sent")
		}

		taskHandler := queue.NewTaskHandler(events, redisQueue, notifier, cfg.Telegram.ChatID)
		if err := redisQueue.Subscribe(ctx, taskHandler.HandleTask); err != nil {
			logrus.Errorf("Queue subscriber error: %v", err)
		}
		defer redisQueue.Close()
	}

	if cfg.Worker.Enabled {
		sweeper := worker.NewPaymentSweeper(paymentService, cfg.Worker.SweepInterval, cfg.Payment.PendingTTL, cfg.Worker.BatchSize)
		go sweeper.Start(ctx)
	}

	if cfg.Server.Mode == "release" || cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := transport.RouterOptions{
		Tokens:         auth.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiration),
		Redis:          redisClient,
		IdempotencyTTL: cfg.Cache.IdempotencyTTL,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
		opts.MetricsHandler = metrics.Handler()
	}

	router := transport.InitRoutes(transport.Handlers{
		Booking: transport.NewBookingHandler(bookingService),
		Payment: transport.NewPaymentHandler(paymentService),
		Meta:    transport.NewMetaHandler(cfg.Server.AppVersion, store.checks),
	}, opts)

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("port", cfg.Server.Port).Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
	cancel()
}

func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func openStorage(cfg *config.Config) (*storage, error) {
	if cfg.Database.Driver == "memory" {
		s := memory.NewStore()
		memory.SeedDemo(s)
		logrus.WithFields(logrus.Fields{
			"tour_id":  memory.DemoTourID,
			"user_id":  memory.DemoUserID,
			"admin_id": memory.DemoAdminID,
		}).Warn("Using in-memory storage with demo data")

		return &storage{
			deps: service.Deps{
				Bookings: s.Bookings(),
				Payments: s.Payments(),
				Tours:    s.Tours(),
				Users:    s.Users(),
				Tx:       s,
			},
			checks: map[string]transport.HealthCheck{},
			close:  func() {},
		}, nil
	}

	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &storage{
		deps: service.Deps{
			Bookings: repository.NewBookingRepository(db),
			Payments: repository.NewPaymentRepository(db),
			Tours:    repository.NewTourRepository(db),
			Users:    repository.NewUserRepository(db),
			Tx:       repository.NewTxManager(db),
		},
		checks: map[string]transport.HealthCheck{
			"postgres": pingDB(db),
		},
		close: func() { db.Close() },
	}, nil
}

func pingDB(db *sql.DB) transport.HealthCheck {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}

func openEventBus(cfg *config.Config) (queue.EventPublisher, error) {
	switch cfg.Events.Broker {
	case "kafka":
		return kafka.NewProducer(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
	case "rabbitmq":
		return rabbitmq.NewPublisher(rabbitmq.Config{
			URL:       cfg.RabbitMQ.URL,
			QueueName: cfg.RabbitMQ.QueueName,
		})
	default:
		return queue.LogPublisher{}, nil
	}
}
