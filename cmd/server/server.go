package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SafeVault/wallet-service/internal/api"
	"github.com/SafeVault/wallet-service/internal/api/handlers"
	"github.com/SafeVault/wallet-service/internal/config"
)

const shutdownTimeout = 30 * time.Second

// New 服务启动命令
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the wallet service HTTP server",
		Run: func(_ *cobra.Command, _ []string) {
			runServer()
		},
	}
}

func runServer() {
	cfg := config.DefaultServiceConfigFromEnv()

	s := api.NewServer(cfg)
	if err := s.InitComponents(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize components")
	}
	s.InitRouter()
	handlers.AttachAllRoutes(s)

	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()
	log.Info().Str("listen_address", cfg.Echo.ListenAddress).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to shut down gracefully")
	}
}
