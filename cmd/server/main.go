package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	echoapi "go.pilab.hu/authz/api/echo"
	"go.pilab.hu/authz/cache"
	redisstore "go.pilab.hu/authz/cache/redis"
	"go.pilab.hu/authz/client"
	"go.pilab.hu/authz/config"
	"go.pilab.hu/authz/domain"
	"go.pilab.hu/authz/internal/metrics"
	applog "go.pilab.hu/authz/log"
	"go.pilab.hu/authz/mongodb"
	"go.pilab.hu/authz/services"
	"go.pilab.hu/authz/tracing"
)

var (
	appLogger      applog.Logger
	httpServer     *http.Server
	tracerProvider *sdktrace.TracerProvider
)

// logOnlyNotifier stands in for an SMS/email gateway in development setups.
type logOnlyNotifier struct{}

func (logOnlyNotifier) SendCode(ctx context.Context, owner *domain.ResourceOwner, code string) error {
	appLogger.Info(ctx, "two-factor code issued", map[string]any{
		"owner_id": owner.ID,
		"code":     code,
	})
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger = applog.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting authorization server", map[string]any{
		"http_port":     cfg.HTTPPort,
		"issuer":        cfg.Issuer,
		"mongo_db_name": cfg.MongoDBName,
		"log_level":     cfg.LogLevel,
	})

	tracerProvider, err = tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
	}

	if initErr := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
		appLogger.Fatal(ctx, "Failed to initialize MongoDB connection", initErr)
	}
	db := mongodb.GetDB()
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		appLogger.Fatal(ctx, "Failed to ensure MongoDB indexes", err)
	}

	// Repositories
	clientRepo := mongodb.NewClientRepository(db)
	tokenRepo := mongodb.NewTokenRepository(db)
	authCodeRepo := mongodb.NewAuthCodeRepository(db)
	deviceCodeRepo := mongodb.NewDeviceCodeRepository(db)
	ticketRepo := mongodb.NewTicketRepository(db)
	resourceSetRepo := mongodb.NewResourceSetRepository(db)
	consentRepo := mongodb.NewConsentRepository(db)
	scopeRepo := mongodb.NewScopeRepository(db)
	ownerRepo := mongodb.NewResourceOwnerRepository(db)

	// Token cache: redis when configured, in-memory otherwise.
	var tokenCache cache.TokenStore
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		tokenCache = redisstore.NewTokenStore(redisClient, "authz")
	} else {
		tokenCache = cache.NewMemoryTokenStore(time.Minute)
	}

	// Signing keys
	keyResolver := services.NewKeyResolver()
	if _, err := keyResolver.GenerateSigningKey("RS256"); err != nil {
		appLogger.Fatal(ctx, "Failed to generate signing key", err)
	}
	signer := services.NewTokenSigner(keyResolver)

	// Metrics
	registry := prometheus.NewRegistry()
	metrics.RegisterMetrics(registry)

	// Services
	tokenService := services.NewTokenService(
		tokenRepo, tokenCache, signer, cfg.Issuer,
		cfg.AccessTokenTTL(), cfg.RefreshTokenTTL(), appLogger,
	)
	policyEngine := services.NewPolicyEngine(
		resourceSetRepo, consentRepo,
		services.NewPredicateRegistry(),
		cfg.PermissionTTL(), appLogger,
	)
	twoFactorService := services.NewTwoFactorService(logOnlyNotifier{}, 5*time.Minute, appLogger)
	defer twoFactorService.Close()

	grantService := services.NewGrantService(
		clientRepo, ownerRepo, authCodeRepo, deviceCodeRepo, ticketRepo,
		tokenService, policyEngine, twoFactorService,
		services.PassthroughAccountFilter{}, appLogger,
	)
	deviceService := services.NewDeviceService(
		deviceCodeRepo, clientRepo,
		cfg.Issuer+"/device",
		cfg.DeviceCodeTTL(),
		time.Duration(cfg.DevicePollIntervalSec)*time.Second,
		appLogger,
	)
	permissionService := services.NewPermissionService(
		ticketRepo, resourceSetRepo,
		cfg.TicketTTL(), cfg.TicketSweepInterval(), appLogger,
	)
	resourceSetService := services.NewResourceSetService(resourceSetRepo, appLogger)

	sectorFetcher := client.NewHTTPSectorFetcher(cfg.SectorFetchTimeout())
	clientFactory := client.NewFactory(scopeRepo, sectorFetcher)
	clientService := client.NewService(clientFactory, clientRepo)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go permissionService.StartSweeper(sweepCtx)

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		if err := mongodb.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	authzAPI := echoapi.NewAuthzAPI(
		grantService, tokenService, deviceService,
		permissionService, resourceSetService, policyEngine,
		keyResolver, clientService, cfg.Issuer,
	)
	authzAPI.RegisterRoutes(e)

	httpServer = &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLogger.Info(ctx, "HTTP server listening", map[string]any{"port": cfg.HTTPPort})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(ctx, "Failed to start HTTP server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info(ctx, "Shutting down server")
	stopSweeper()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err)
		}
	}
	mongodb.CloseMongoDB(shutdownCtx)

	appLogger.Info(shutdownCtx, "Server gracefully stopped")
}
