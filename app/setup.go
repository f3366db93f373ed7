package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sahilchouksey/booklet-evaluation/api"
	"github.com/sahilchouksey/booklet-evaluation/config"
	"github.com/sahilchouksey/booklet-evaluation/database"
	"github.com/sahilchouksey/booklet-evaluation/router"
	"github.com/sahilchouksey/booklet-evaluation/services"
	"github.com/sahilchouksey/booklet-evaluation/services/classifier"
	"github.com/sahilchouksey/booklet-evaluation/services/cron"
	"github.com/sahilchouksey/booklet-evaluation/services/extractor"
	"github.com/sahilchouksey/booklet-evaluation/services/folderledger"
	"github.com/sahilchouksey/booklet-evaluation/services/notification"
	"github.com/sahilchouksey/booklet-evaluation/services/storage"
	"github.com/sahilchouksey/booklet-evaluation/utils/auth"
	"github.com/sahilchouksey/booklet-evaluation/utils/cache"
	"github.com/sahilchouksey/booklet-evaluation/utils/middleware"
	"github.com/sahilchouksey/booklet-evaluation/utils/pdfvalidation"
)

const shutdownTimeout = 10 * time.Second

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}
	setLogLevel(getEnv.LOG_LEVEL)

	if getEnv.JWT_SECRET == "" && !getEnv.AUTH_DISABLED {
		return fmt.Errorf("JWT_SECRET environment variable is not set")
	}

	// Initialize GORM database connection
	store, err := database.StartGORM(getEnv)
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		print("If not running, run the following command:\n")
		print("  make docker-up   (for Docker setup)\n")
		print("  make db-up       (for local PostgreSQL)\n")
		return err
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		print("Failed to initialize database tables\n")
		print("Error running migrations:\n")
		return err
	}
	db := store.GetDB()

	// Redis is optional: run tracking and the event bus fall back to
	// in-process implementations without it.
	var redisCache *cache.RedisCache
	if getEnv.REDIS_URL != "" {
		redisCache, err = cache.NewRedisCache(getEnv.REDIS_URL)
		if err != nil {
			log.Warnf("Failed to connect to Redis: %v. Continuing without it.", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
		}
	}

	bus, closeBus, err := newBus(getEnv.EVENT_BUS, redisCache, store)
	if err != nil {
		return err
	}
	defer closeBus()

	layout := getEnv.Layout()
	counter := pdfvalidation.NewCounter(pdfvalidation.PDFLimits{
		MaxFileSizeMB: pdfvalidation.DefaultLimits.MaxFileSizeMB,
		ParseTimeout:  getEnv.PDF_PARSE_TIMEOUT,
	})
	images := extractor.New(extractor.NewFitzRenderer(getEnv.RENDER_DPI), getEnv.RENDER_WORKERS)
	tracker := classifier.NewRunTracker(redisCache)

	classifierCfg := classifier.Config{
		DB:        db,
		Layout:    layout,
		Counter:   counter,
		Extractor: images,
		Bus:       bus,
		Tracker:   tracker,
	}
	archiveCfg := storage.ArchiveConfig{
		AccessKey: getEnv.REPORT_ACCESS_KEY,
		SecretKey: getEnv.REPORT_SECRET_KEY,
		Bucket:    getEnv.REPORT_BUCKET,
		Region:    getEnv.REPORT_REGION,
		Endpoint:  getEnv.REPORT_ENDPOINT,
	}
	if archiveCfg.Enabled() {
		archiver, err := storage.NewS3Archiver(archiveCfg)
		if err != nil {
			log.Warnf("Report archive disabled: %v", err)
		} else {
			classifierCfg.Archiver = archiver
		}
	}
	classifierService := classifier.NewService(classifierCfg)
	defer classifierService.Wait()

	ledger := folderledger.NewLedger(db, layout.ScannedRoot(), bus)

	// Background work is cancelled before the deferred waits above run.
	bgCtx, stopBackground := context.WithCancel(context.Background())
	var bg sync.WaitGroup
	defer func() {
		stopBackground()
		bg.Wait()
	}()

	if getEnv.WATCHER_ENABLED {
		if err := os.MkdirAll(layout.ScannedRoot(), 0o755); err != nil {
			return fmt.Errorf("failed to create scanned root: %w", err)
		}
		watcher := folderledger.NewWatcher(ledger, folderledger.DefaultDebounce)
		bg.Add(1)
		go func() {
			defer bg.Done()
			if err := watcher.Run(bgCtx); err != nil {
				log.Errorf("[WATCHER] stopped: %v", err)
			}
		}()
	}

	// Initialize Cron Manager (only if enabled via environment variable)
	if getEnv.CRON_ENABLED {
		cronManager := cron.NewCronManager(db, ledger, tracker)
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			log.Warnf("Failed to start cron jobs: %v", err)
		} else {
			defer cronManager.Stop()
		}
	}

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	// Setup Routes
	router.SetupRoutes(app, router.Dependencies{
		Store: store,
		Cache: redisCache,
		JWT: auth.NewJWTManager(auth.JWTConfig{
			Secret: getEnv.JWT_SECRET,
			Issuer: getEnv.JWT_ISSUER,
		}),
		AuthDisabled: getEnv.AUTH_DISABLED,
		Security: middleware.SecurityConfig{
			AllowedOrigins:    getEnv.ALLOWED_ORIGINS,
			RateLimitRequests: getEnv.RATE_LIMIT_REQUESTS,
			RateLimitWindow:   time.Minute,
		},
		Bus:         bus,
		Classifier:  classifierService,
		Ledger:      ledger,
		Tasks:       services.NewTaskService(db, getEnv.TASK_ROOT, counter, images),
		Annotations: services.NewAnnotationService(db),
		Marks:       services.NewMarksService(db),
		Images:      services.NewAnswerImageService(db),
	})

	// Shut down on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("Shutting down server...")
		if err := server.Shutdown(shutdownTimeout); err != nil {
			log.Errorf("Server shutdown failed: %v", err)
		}
	}()

	// Get the PORT & Start the Server
	return server.Run()
}

// newBus picks the event bus named by EVENT_BUS. The returned func releases
// its connections.
func newBus(kind string, redisCache *cache.RedisCache, store *database.GORMStore) (notification.Bus, func(), error) {
	switch kind {
	case "redis":
		if redisCache == nil {
			log.Warn("[EVENTS] EVENT_BUS=redis without a reachable REDIS_URL, using the in-memory bus")
			return notification.NewMemoryBus(), func() {}, nil
		}
		return notification.NewRedisBus(redisCache.GetClient()), func() {}, nil
	case "postgres":
		bus, err := notification.NewPostgresBus(store.GetDB(), store.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to start postgres event bus: %w", err)
		}
		return bus, func() { bus.Shutdown() }, nil
	case "", "memory":
		return notification.NewMemoryBus(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown EVENT_BUS %q", kind)
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.LevelDebug)
	case "warn":
		log.SetLevel(log.LevelWarn)
	case "error":
		log.SetLevel(log.LevelError)
	default:
		log.SetLevel(log.LevelInfo)
	}
}
