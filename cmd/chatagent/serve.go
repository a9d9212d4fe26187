package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/IMBotPlatform/ChatAgent/pkg/ai"
	"github.com/IMBotPlatform/ChatAgent/pkg/config"
	"github.com/IMBotPlatform/ChatAgent/pkg/memory"
	"github.com/IMBotPlatform/ChatAgent/pkg/server"
	"github.com/IMBotPlatform/ChatAgent/pkg/tools"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, opts.logger)
		},
	}
}

// runServe 装配全部依赖并运行 HTTP 服务，ctx 取消后优雅退出。
//
//	config -> SQLite store -> model + tools -> graph -> server -> listen
func runServe(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// 1) 打开历史存储（进程内唯一连接池）
	store, err := memory.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	logger.Info().Str("path", cfg.Storage.Path).Msg("chat history store opened")

	// 2) 构建对话图；模型不可用时以未初始化状态启动
	runner := buildRunner(ctx, cfg, logger)

	// 3) 启动 HTTP 服务
	srv := server.New(runner, store,
		server.WithLogger(logger),
		server.WithPacing(cfg.Stream.Pacing),
		server.WithVersion(version),
	)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("chat agent listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildRunner 返回对话图；缺少模型密钥等配置错误时返回 nil（接口以 503 应答）。
func buildRunner(ctx context.Context, cfg *config.Config, logger zerolog.Logger) server.Runner {
	svc := ai.NewService(&cfg.AI)
	model, err := svc.Model(ctx, "")
	if err != nil {
		logger.Warn().Err(err).Msg("model unavailable, chat endpoints will answer 503")
		return nil
	}

	if cfg.Tools.TavilyAPIKey == "" {
		logger.Warn().Msg("TAVILY_API_KEY not set, web search will report an error to the model")
	}
	toolset := tools.Registry(tools.Config{TavilyAPIKey: cfg.Tools.TavilyAPIKey})

	graphOpts := []ai.GraphOption{
		ai.WithMaxTurns(cfg.AI.MaxTurns),
		ai.WithCallOptions(svc.CallOptions("")...),
		ai.WithLogger(logger.With().Str("component", "graph").Logger()),
	}
	if cfg.Tracing.Enabled {
		graphOpts = append(graphOpts, ai.WithCallbacks(ai.NewTraceHandler(cfg.Tracing, logger)))
		logger.Info().Str("project", cfg.Tracing.Project).Msg("tracing enabled")
	}

	names := make([]string, 0, len(toolset))
	for _, t := range toolset {
		names = append(names, t.Name())
	}
	logger.Info().Strs("tools", names).Int("max_turns", cfg.AI.MaxTurns).Msg("agent ready")
	return ai.NewGraph(model, toolset, graphOpts...)
}
