package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sandevgo/mnemo/internal/config"
	"github.com/sandevgo/mnemo/internal/providers/llm"
	"github.com/sandevgo/mnemo/internal/service/contextbuf"
	"github.com/sandevgo/mnemo/internal/service/memory"
	"github.com/sandevgo/mnemo/internal/storage/sqlite"
	"github.com/sandevgo/mnemo/pkg/log"
	"github.com/sandevgo/mnemo/pkg/srv"
)

// App is the wired object graph. The context buffer and memory service are
// the library surface embedders consume; Services holds the background
// workers to run alongside them.
type App struct {
	Buffer *contextbuf.ContextBuffer
	Memory *memory.Service

	services []srv.Service
}

func NewApp(ctx context.Context) *App {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	ctxCfg := config.NewContextConfig(ctx)
	memCfg := config.NewMemoryConfig(ctx)
	llmCfg := config.NewLLMConfig(ctx)

	// 2. Storage
	db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup(db.Close))
	repo := sqlite.NewMemoryRepo(db)

	// 3. Generation provider
	gen := llm.NewGenerator(llmCfg)

	// 4. Context buffer with its cache sweeper and summarization pipeline
	buffer, cache, pipeline := contextbuf.New(ctxCfg, gen)
	services = append(services, cache, pipeline)

	// 5. Memory service with its retention sweeper
	memSvc := memory.NewService(memCfg, repo)
	services = append(services, memory.NewPruneSweeper(memSvc, memCfg.PruneInterval))

	return &App{
		Buffer:   buffer,
		Memory:   memSvc,
		services: services,
	}
}

func (a *App) Services() []srv.Service {
	return a.services
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, "mnemo.env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded env file")
	return nil
}
