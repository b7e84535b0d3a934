package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/videoforge/videoforge/internal/archive"
	"github.com/videoforge/videoforge/internal/cache"
	"github.com/videoforge/videoforge/internal/chunkstore"
	"github.com/videoforge/videoforge/internal/config"
	"github.com/videoforge/videoforge/internal/database"
	"github.com/videoforge/videoforge/internal/diskbudget"
	"github.com/videoforge/videoforge/internal/fingerprint"
	"github.com/videoforge/videoforge/internal/governor"
	"github.com/videoforge/videoforge/internal/logger"
	"github.com/videoforge/videoforge/internal/pushbus"
	"github.com/videoforge/videoforge/internal/retention"
	"github.com/videoforge/videoforge/internal/tasks"
	"github.com/videoforge/videoforge/internal/uploadsession"
)

// Server owns every component (db, config, logger, and each domain
// engine) and exposes the REST + realtime surface over Gin.
type Server struct {
	config *config.Config
	db     *sql.DB
	router *gin.Engine
	logger *logger.Logger

	taskRepo     *database.TaskRepository
	settingsRepo *database.SettingsRepository

	chunks      *chunkstore.Store
	fingerprint *fingerprint.Service
	uploads     *uploadsession.Manager
	budget      *diskbudget.Controller
	gov         *governor.Governor
	engine      *tasks.Engine
	retention   *retention.Engine
	hub         *pushbus.Hub

	httpServer        *http.Server
	stopBudgetRefresh context.CancelFunc
}

func NewServer(cfg *config.Config, db *sql.DB) *Server {
	log := logger.NewLogger("API")

	taskRepo := database.NewTaskRepository(db)
	retentionRepo := database.NewRetentionRepository(db)
	settingsRepo := database.NewSettingsRepository(db)

	chunks, err := chunkstore.New(cfg.TempPath, cfg.StoragePath)
	if err != nil {
		log.Error("initialize chunk store", err)
	}

	fp := fingerprint.New(cfg.QuickFingerprintThreshold)
	gov := governor.New(cfg.UploadConcurrency, cfg.DownloadConcurrency)

	s := &Server{}
	hub := pushbus.NewHub(s.handleHubInbound)
	go hub.Run()

	budget := diskbudget.New(cfg.StoragePath, cfg.TempPath, cfg.DiskBudgetEnabled, cfg.MaxTotalSpaceGB, cfg.ReservedSpaceGB, hub)
	if cfg.RedisURL != "" {
		if rc, err := cache.NewRedisClient(cache.RedisConfig{URL: cfg.RedisURL}, log.Logger); err != nil {
			log.Error("connect to Redis, running without the shared usage cache", err)
		} else {
			budget.WithCache(rc)
		}
	}

	engine := tasks.New(taskRepo, gov, hub, cfg.EncoderPath, cfg.EncoderArgsTemplate)

	archiver, err := archive.New(context.Background(), cfg.ArchiveProvider, cfg.ArchiveBucket, cfg.ArchiveRegion, cfg.ArchiveKMSKeyID)
	if err != nil {
		log.Error("initialize archiver", err)
		archiver, _ = archive.New(context.Background(), "none", "", "", "")
	}

	uploads := uploadsession.New(chunks, fp, time.Duration(cfg.UploadSessionTTLHours)*time.Hour)
	if err := uploads.Rebuild(cfg.TempPath); err != nil {
		log.Error("rebuild upload sessions", err)
	}

	retentionEngine := retention.New(
		retentionRepo, taskRepo, chunks, budget, archiver, uploads, hub,
		cfg.TempPath, "", // log path left unconfigured: container log shipping handles rotation
		time.Duration(cfg.TempTTLHours)*time.Hour,
		time.Duration(cfg.LogRetentionDays)*24*time.Hour,
		time.Duration(cfg.RetentionWindowHours)*time.Hour,
		cfg.AggressiveUsagePercent, cfg.EmergencyUsagePercent,
		retention.MailConfig{
			ReportTo: cfg.CleanupReportToMail,
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		},
	)

	s.config = cfg
	s.db = db
	s.router = gin.New()
	s.logger = log
	s.taskRepo = taskRepo
	s.settingsRepo = settingsRepo
	s.chunks = chunks
	s.fingerprint = fp
	s.uploads = uploads
	s.budget = budget
	s.gov = gov
	s.engine = engine
	s.retention = retentionEngine
	s.hub = hub

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	s.router.Use(gin.Recovery())
	s.router.Use(gin.Logger())

	corsConfig := cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Accept", "Origin"},
		ExposeHeaders:    []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	s.router.Use(cors.New(corsConfig))

	authMiddleware := s.oidcMiddleware()

	s.router.GET("/api/health", s.handleHealth)

	apiGroup := s.router.Group("/api")
	apiGroup.Use(authMiddleware)

	upload := apiGroup.Group("/upload/chunked")
	upload.POST("/init", s.handleUploadInit)
	upload.POST("/chunk", s.handleUploadChunk)
	upload.GET("/status/:uploadId", s.handleUploadStatus)
	upload.POST("/complete/:uploadId", s.handleUploadComplete)

	conversion := apiGroup.Group("/conversion")
	conversion.GET("/status/:taskId", s.handleConversionStatus)
	conversion.POST("/cancel/:taskId", s.handleConversionCancel)
	conversion.GET("/download/:taskId", s.handleConversionDownload)

	task := apiGroup.Group("/task")
	task.GET("/list", s.handleTaskList)
	task.DELETE("/:taskId", s.handleTaskDelete)

	diskspace := apiGroup.Group("/diskspace")
	diskspace.POST("/check-space", s.handleCheckSpace)
	diskspace.GET("/config", s.handleDiskspaceConfigGet)
	diskspace.POST("/config", s.handleDiskspaceConfigSet)
	diskspace.GET("/usage", s.handleDiskspaceUsage)

	cleanup := apiGroup.Group("/cleanup")
	cleanup.POST("/cleanup/:type", s.handleCleanup)

	s.router.GET("/conversionHub", s.handleConversionHub)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start brings up the background engines and the HTTP listener.
func (s *Server) Start() error {
	if err := s.retention.Start(); err != nil {
		s.logger.Error("start retention engine", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopBudgetRefresh = cancel
	go s.budget.StartPeriodicRefresh(ctx, 30*time.Second)

	s.httpServer = &http.Server{Addr: ":" + s.config.Port, Handler: s.router}
	s.logger.Info("starting server on port " + s.config.Port)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down background engines and the HTTP listener.
func (s *Server) Stop() error {
	if s.stopBudgetRefresh != nil {
		s.stopBudgetRefresh()
	}
	if err := s.retention.Stop(); err != nil {
		s.logger.Error("stop retention engine", err)
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
