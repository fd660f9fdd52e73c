package cmd

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-referral/app/controller"
	referralgrpc "github.com/vibast-solutions/ms-go-referral/app/grpc"
	"github.com/vibast-solutions/ms-go-referral/app/middleware"
	"github.com/vibast-solutions/ms-go-referral/app/repository"
	"github.com/vibast-solutions/ms-go-referral/app/service"
	"github.com/vibast-solutions/ms-go-referral/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start the HTTP (Echo) API and the gRPC health server for the referral service.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	referralCache, closeCache, err := newReferralCache(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize referral cache")
	}
	defer closeCache()

	publisher, err := newPublisher(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize event publisher")
	}
	defer publisher.Close()

	tokens, err := service.NewTokenService(cfg.JWT)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize token service")
	}

	userRepo := repository.NewUserRepository(db)
	codeRepo := repository.NewReferralCodeRepository(db)
	authService := service.NewAuthService(
		db,
		userRepo,
		service.NewBcryptHasher(cfg.Password.BcryptCost),
		tokens,
		cfg.Password.Policy,
		service.WithPublisher(publisher),
	)
	referralService := service.NewReferralCodeService(userRepo, codeRepo, referralCache, service.WithPublisher(publisher))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go startGRPCServer(ctx, cfg, db)

	startHTTPServer(ctx, cfg, db, authService, referralService)
}

func newHTTPServer(db *sql.DB, authService service.AuthService, referralService service.ReferralCodeService) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	authController := controller.NewAuthController(authService)
	referralController := controller.NewReferralController(referralService)
	healthController := controller.NewHealthController(db)
	authMiddleware := middleware.NewAuthMiddleware(authService)

	e.GET("/health", healthController.Check)

	auth := e.Group("/auth")
	auth.POST("/signup", authController.Register)
	auth.POST("/login", authController.Login)
	auth.POST("/refresh", authController.RefreshToken)
	auth.GET("/me", authController.Me, authMiddleware.RequireAuth)

	ref := e.Group("/ref")
	ref.GET("/:email", referralController.GetByEmail)

	refProtected := ref.Group("")
	refProtected.Use(authMiddleware.RequireAuth)
	refProtected.POST("/create", referralController.Create)
	refProtected.DELETE("/delete", referralController.Delete)
	refProtected.POST("/extend", referralController.Extend)
	refProtected.POST("/deactivate", referralController.Deactivate)

	e.GET("/referrals/:referrer_id", referralController.ListReferrals)

	return e
}

func startHTTPServer(ctx context.Context, cfg *config.Config, db *sql.DB, authService service.AuthService, referralService service.ReferralCodeService) {
	e := newHTTPServer(db, authService, referralService)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("Failed to shut down HTTP server")
		}
	}()

	httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
	logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
	if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Fatal("Failed to start HTTP server")
	}
	logrus.Info("HTTP server stopped")
}

func startGRPCServer(ctx context.Context, cfg *config.Config, db *sql.DB) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	healthServer := referralgrpc.NewHealthServer(db, 10*time.Second)
	go healthServer.Watch(ctx)

	grpcServer := referralgrpc.NewServer(healthServer)
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
	if err := grpcServer.Serve(lis); err != nil {
		logrus.WithError(err).Fatal("Failed to start gRPC server")
	}
}
