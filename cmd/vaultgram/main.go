package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"vaultgram/internal/app"
	"vaultgram/pkg/config"
	"vaultgram/pkg/logger"
	"vaultgram/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")

	flags := config.ParseFlags()
	eff, err := config.LoadEffective(flags)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	level := ""
	if eff.Config != nil {
		level = eff.Config.Logging.Level
	}
	logger.InitWithLevel(level)
	defer logger.Sync()

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup failed", err, eff.DBPath, 0)
	}
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("runtime failure", err, eff.DBPath, 0)
	}
}
