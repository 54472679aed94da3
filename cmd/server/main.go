package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"prompt-chaining/backend/internal/api"
	"prompt-chaining/backend/internal/auth"
	"prompt-chaining/backend/internal/config"
	"prompt-chaining/backend/internal/logging"
	"prompt-chaining/backend/internal/mcp"
	"prompt-chaining/backend/internal/observability"
	"prompt-chaining/backend/internal/repository"
	"prompt-chaining/backend/internal/services"
	"prompt-chaining/backend/internal/tls"
	"prompt-chaining/backend/internal/workflow"
)

const serviceName = "prompt-chaining"

type cli struct {
	configFile string
	envFile    string
	port       int
	cfg        *config.Config
}

func (c *cli) setupConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(c.configFile, c.envFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = c.port
	}
	c.cfg = cfg
	return nil
}

func (c *cli) run(cmd *cobra.Command, _ []string) error {
	cfg := c.cfg

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		"config_file", cfg.ConfigFile,
		"environment", cfg.Environment,
		"store", cfg.Store.Driver,
		"oidc", cfg.OIDCEnabled(),
		"llm_url", cfg.LLM.URL,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize repository layer
	repo, err := repository.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store initialization failed: %w", err)
	}
	defer func() {
		if err := repo.Close(context.Background()); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()
	logger.Info("Store connected", "driver", cfg.Store.Driver)

	workflowStore := repository.NewCachedWorkflowStore(repo, cfg.Store.CacheTTL)

	// Initialize service layer
	completion := services.NewHTTPCompletionClient(cfg.LLM.URL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)
	interpreter := workflow.NewInterpreter(completion,
		workflow.WithSystemPrompt(cfg.LLM.SystemPrompt),
		workflow.WithLogger(logger.With("component", "interpreter")),
		workflow.WithMetrics(observability.NewMetricsRecorder()),
		workflow.WithSpanManager(observability.NewSpanManager()),
	)
	workflowService := services.NewWorkflowService(workflowStore, interpreter, logger)

	secret := cfg.JWT.Secret
	if secret == "" {
		// only reachable with the DEV bypass; tokens do not survive a restart
		secret = uuid.NewString()
		logger.Warn("jwt.secret not set, using a random per-process secret")
	}
	tokens, err := auth.NewTokenIssuer(secret, cfg.JWT.AccessTTL)
	if err != nil {
		return err
	}
	accountService := services.NewAuthService(repo, tokens, cfg.JWT.RefreshTTL, logger)

	logger.Info("Service layer initialized")

	// Initialize authentication
	authz, err := auth.New(ctx, cfg, tokens, repo, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}

	// Create Echo server
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.HTTPErrorHandler(logger)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(otelecho.Middleware(serviceName))

	// Mount REST API handlers
	handler := api.NewHandler(workflowService, accountService, repo, logger)
	api.RegisterRoutes(e, handler, authz)

	logger.Info("REST API handlers mounted")

	// Mount MCP protocol handlers
	mcpServer := mcp.NewServer(workflowService, api.Version)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	mcpHandler := echo.WrapHandler(authz.RequireAuth(mcpHandlers))
	e.Any("/mcp", mcpHandler)
	e.Any("/mcp/*", mcpHandler)

	logger.Info("MCP protocol handlers mounted")

	// expose OpenAPI spec and Swagger UI
	e.GET("/openapi.yaml", echo.WrapHandler(api.SpecHandler(cfg.Auth.OktaDomain)))
	e.GET("/docs", echo.WrapHandler(api.SwaggerHandler(cfg.Auth.ClientID)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(http.HandlerFunc(api.OAuthRedirectHandler)))

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.TLS.Enable {
		generated, err := tls.EnsureCertificate(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			return fmt.Errorf("tls setup failed: %w", err)
		}
		if generated {
			logger.Warn("generated self-signed certificate", "cert_file", cfg.TLS.CertFile)
		}
		server.TLSConfig, err = tls.ServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return err
		}
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			serverErrors <- server.ListenAndServeTLS("", "")
			return
		}
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
	return nil
}

func main() {
	c := &cli{}

	cmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Serve the prompt chaining workflow API",
		PreRunE:      c.setupConfig,
		RunE:         c.run,
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&c.configFile, "config", "", "Path to config file")
	cmd.Flags().StringVar(&c.envFile, "env", "", "Path to .env file")
	cmd.Flags().IntVar(&c.port, "port", 8080, "HTTP port (overrides server.port)")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
