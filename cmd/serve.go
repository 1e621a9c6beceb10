package cmd

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-filedrop/app/controller"
	filedropgrpc "github.com/vibast-solutions/ms-go-filedrop/app/grpc"
	"github.com/vibast-solutions/ms-go-filedrop/app/mailer"
	"github.com/vibast-solutions/ms-go-filedrop/app/middleware"
	"github.com/vibast-solutions/ms-go-filedrop/app/repository"
	"github.com/vibast-solutions/ms-go-filedrop/app/service"
	"github.com/vibast-solutions/ms-go-filedrop/app/storage"
	"github.com/vibast-solutions/ms-go-filedrop/app/view"
	"github.com/vibast-solutions/ms-go-filedrop/config"
	"github.com/vibast-solutions/ms-go-filedrop/migrations"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	healthCheckInterval = 15 * time.Second
	shutdownTimeout     = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start the HTTP (Echo) server for the web pages and file API, and the gRPC health server.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type services struct {
	accounts  service.AccountService
	transfers service.TransferService
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	if cfg.MySQL.AutoMigrate {
		if err := migrations.Up(ctx, db); err != nil {
			logrus.WithError(err).Fatal("Failed to apply migrations")
		}
	}

	svcs, err := buildServices(ctx, cfg, db)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialise services")
	}

	go startGRPCServer(ctx, cfg, db)

	startHTTPServer(ctx, cfg, svcs)
}

func buildServices(ctx context.Context, cfg *config.Config, db *sql.DB) (*services, error) {
	m, err := mailer.NewFromConfig(cfg.Mail)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	transferRepo := repository.NewTransferRepository(db)

	return &services{
		accounts:  service.NewAccountService(userRepo, sessionRepo, m, cfg),
		transfers: service.NewTransferService(transferRepo, store, cfg.Transfer),
	}, nil
}

func newHTTPServer(cfg *config.Config, svcs *services) (*echo.Echo, error) {
	renderer, err := view.NewRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.Renderer = renderer

	e.Pre(echomiddleware.RemoveTrailingSlash())
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
	e.Use(echomiddleware.BodyLimit(cfg.HTTP.BodyLimit))
	e.Use(echomiddleware.CSRFWithConfig(echomiddleware.CSRFConfig{
		Skipper:        csrfExempt,
		TokenLookup:    "form:csrf_token",
		CookieName:     "filedrop_csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   cfg.Session.SecureCookie,
		CookieSameSite: http.SameSiteLaxMode,
	}))

	sessionMiddleware := middleware.NewSessionMiddleware(svcs.accounts, cfg.Session.CookieName)
	adminMiddleware := middleware.NewAdminKeyMiddleware(cfg.Admin.APIKey)
	e.Use(sessionMiddleware.LoadUser)

	accountController := controller.NewAccountController(svcs.accounts, cfg.Session)
	transferController := controller.NewTransferController(svcs.transfers)
	adminController := controller.NewAdminController(svcs.accounts)

	e.GET("/", transferController.Index)
	e.GET("/ui/upload", transferController.UploadPage)
	e.GET("/ui/download", transferController.DownloadPage)
	e.POST("/upload", transferController.Upload)
	e.GET("/download/:code", transferController.Download)

	e.GET("/register", accountController.RegisterPage)
	e.POST("/register", accountController.Register)
	e.GET("/verify-email/:token", accountController.VerifyEmail)
	e.GET("/login", accountController.LoginPage)
	e.POST("/login", accountController.Login)
	e.GET("/password-reset", accountController.PasswordResetPage)
	e.POST("/password-reset", accountController.PasswordReset)
	e.GET("/password-reset-confirm/:uidb64/:token", accountController.PasswordResetConfirmPage)
	e.POST("/password-reset-confirm/:uidb64/:token", accountController.PasswordResetConfirm)

	authed := e.Group("")
	authed.Use(sessionMiddleware.RequireUser)
	authed.POST("/logout", accountController.Logout)
	authed.GET("/dashboard", accountController.Dashboard)

	admin := e.Group("/admin")
	admin.Use(adminMiddleware.RequireAdminKey)
	admin.GET("/users", adminController.ListUsers)

	return e, nil
}

// csrfExempt skips the token check for the JSON upload endpoint and the
// API-key protected admin API.
func csrfExempt(c echo.Context) bool {
	p := c.Request().URL.Path
	return p == "/upload" || strings.HasPrefix(p, "/admin/")
}

func startHTTPServer(ctx context.Context, cfg *config.Config, svcs *services) {
	e, err := newHTTPServer(cfg, svcs)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build HTTP server")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("HTTP server shutdown failed")
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

	checker := filedropgrpc.NewHealthChecker(db, healthCheckInterval)
	go checker.Run(ctx)

	grpcServer := filedropgrpc.NewServer(checker)
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
	if err := grpcServer.Serve(lis); err != nil {
		logrus.WithError(err).Fatal("Failed to start gRPC server")
	}
}
