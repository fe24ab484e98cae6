package main

import (
	"context"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/cds-mcp-bridge/pkg/annotations"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/auth"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/cds"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/compiler"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/config"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/dataaccess"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/handlers"
	mcpserver "github.com/ekaya-inc/cds-mcp-bridge/pkg/mcp"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/mcp/tools"
	"github.com/ekaya-inc/cds-mcp-bridge/pkg/middleware"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("model_path", cfg.ModelPath),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", cfg.Database.Host),
	)

	model, err := cds.Load(cfg.ModelPath)
	if err != nil {
		logger.Fatal("failed to load model", zap.Error(err))
	}

	registry, err := annotations.Build(model, logger)
	if err != nil {
		logger.Fatal("failed to build annotation registry", zap.Error(err))
	}
	logger.Info("annotation registry built",
		zap.Int("resources", len(registry.Resources())),
		zap.Int("tools", len(registry.Tools())),
		zap.Int("prompts", len(registry.Prompts())),
	)

	ctx := context.Background()
	db, err := dataaccess.Connect(ctx, cfg.Database.ConnectionString(), logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	comp := compiler.New(registry, db.Runtime(), compiler.Config{
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
		Timeout:         cfg.Timeout(),
	}, logger)

	filter := tools.NewToolFilter(registry, logger)
	srv := mcpserver.NewServer("cds-mcp-bridge", cfg.Version, filter, logger)

	deps := &tools.Deps{
		Registry:    registry,
		Compiler:    comp,
		Dispatchers: map[string]tools.Dispatcher{},
		Logger:      logger,
	}
	tools.RegisterResourceTools(srv.MCP(), deps)
	tools.RegisterOperationTools(srv.MCP(), deps)
	srv.RegisterResources(registry, comp)
	srv.RegisterPrompts(registry)

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("failed to create JWKS client", zap.Error(err))
	}
	authMiddleware := auth.NewMiddleware(jwksClient, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)

	var mcpHandler http.Handler = srv.NewStreamableHTTPServer()
	mcpHandler = middleware.MCPRequestLogger(logger)(mcpHandler)
	mcpHandler = authMiddleware.WithAuth(mcpHandler)
	mux.Handle("/mcp", mcpHandler)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting cds-mcp-bridge",
		zap.String("addr", addr),
		zap.String("version", cfg.Version),
	)
	if err := http.ListenAndServe(addr, middleware.RequestLogger(logger)(mux)); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
