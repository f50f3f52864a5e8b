package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"lms/pkg/auth"
	"lms/pkg/borrowing"
	"lms/pkg/cache"
	"lms/pkg/catalog"
	"lms/pkg/config"
	"lms/pkg/database"
	apperrors "lms/pkg/errors"
	"lms/pkg/inventory"
	"lms/pkg/logger"
	"lms/pkg/models"
	"lms/pkg/notify"
	"lms/pkg/users"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	db         *gorm.DB
	appLogger  *zap.Logger
	tokens     *auth.TokenService
	accounts   *users.Service
	books      *catalog.Service
	borrowings *borrowing.Service
)

func main() {
	cfg := config.Load()

	appLogger = logger.New("library", cfg.Environment)
	defer appLogger.Sync()

	appLogger.Info("Starting library service",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
		zap.String("notify_channel", cfg.NotifyChannel),
	)

	var err error
	db, err = database.Open(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	channel, closeChannel, err := notifierFor(cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize notification channel", zap.Error(err))
	}
	dispatcher := notify.NewDispatcher(channel, notify.DispatcherConfig{
		Workers:    cfg.NotifyWorkers,
		MaxRetries: cfg.NotifyMaxRetries,
	}, appLogger)
	dispatcher.Start(ctx)

	requestCache := cache.New(cfg, appLogger)
	ledger := inventory.NewLedger(appLogger)

	tokens = auth.NewTokenService(cfg.JWTSecret, cfg.JWTLifetime)
	accounts = users.NewService(db, users.NewBcryptHasher(), appLogger)
	books = catalog.NewService(db, ledger, requestCache, appLogger)
	borrowings = borrowing.NewService(borrowing.Dependencies{
		DB:        db,
		Ledger:    ledger,
		Directory: accounts,
		Notifier:  dispatcher,
		Cache:     requestCache,
		CacheTTL:  cfg.CacheTTL,
		Logger:    appLogger,
	})

	seedAdmin(ctx, cfg)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: setupRouter(),
	}

	go func() {
		appLogger.Info("Library service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	dispatcher.Stop()
	closeChannel()
	if closer, ok := requestCache.(io.Closer); ok {
		_ = closer.Close()
	}
	appLogger.Info("Server exited")
}

func setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware(appLogger))

	router.GET("/manage/health", healthCheck)

	api := router.Group("/api")
	api.POST("/auth/register", register)
	api.POST("/auth/login", login)

	protected := api.Group("", auth.Authenticate(tokens, appLogger))
	librarian := auth.RequireRole(models.RoleSuperUser)

	protected.GET("/books", listBooks)
	protected.GET("/books/:id", getBook)
	protected.POST("/books", librarian, createBook)
	protected.PUT("/books/:id", librarian, updateBook)
	protected.DELETE("/books/:id", librarian, deleteBook)

	protected.GET("/categories", listCategories)
	protected.POST("/categories", librarian, createCategory)

	protected.POST("/borrow-requests", createBorrowRequest)
	protected.GET("/borrow-requests", librarian, listBorrowRequests)
	protected.GET("/borrow-requests/:id", getBorrowRequest)
	protected.PUT("/borrow-requests/:id/status", librarian, updateBorrowRequestStatus)
	protected.DELETE("/borrow-requests/:id", librarian, deleteBorrowRequest)
	protected.GET("/borrow-requests/user/:userId", listUserBorrowRequests)
	protected.GET("/borrow-requests/monthly-count/:userId", getMonthlyCount)

	return router
}

// notifierFor picks the delivery channel behind the dispatcher.
func notifierFor(cfg *config.Config) (notify.Notifier, func(), error) {
	switch cfg.NotifyChannel {
	case "smtp":
		return notify.NewSMTPNotifier(cfg), func() {}, nil
	case "kafka":
		k, err := notify.NewKafkaNotifier(cfg, appLogger)
		if err != nil {
			return nil, nil, err
		}
		return k, func() {
			if err := k.Close(); err != nil {
				appLogger.Warn("Failed to close Kafka producer", zap.Error(err))
			}
		}, nil
	default:
		return notify.NewLogNotifier(appLogger), func() {}, nil
	}
}

func seedAdmin(ctx context.Context, cfg *config.Config) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return
	}
	_, err := accounts.Register(ctx, users.RegisterInput{
		UserName: cfg.AdminUserName,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Role:     models.RoleSuperUser,
	})
	switch {
	case err == nil:
		appLogger.Info("Seeded librarian account", zap.String("email", cfg.AdminEmail))
	case errors.Is(err, apperrors.ErrConflict):
	default:
		appLogger.Warn("Failed to seed librarian account", zap.Error(err))
	}
}

func healthCheck(c *gin.Context) {
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database connection failed",
			"error":   err.Error(),
		})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}
