package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SafeVault/wallet-service/cmd/probe"
	"github.com/SafeVault/wallet-service/cmd/server"
	"github.com/SafeVault/wallet-service/cmd/signer"
	"github.com/SafeVault/wallet-service/internal/config"
)

func main() {
	cfg := config.DefaultServiceConfigFromEnv()
	initLogger(cfg)

	rootCmd := &cobra.Command{
		Use:   "wallet-service",
		Short: "Passkey-authenticated custodial wallet service for Soroban contracts",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				log.Fatal().Err(err).Msg("Failed to print help")
			}
		},
	}
	rootCmd.AddCommand(
		server.New(),
		probe.New(),
		signer.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func initLogger(cfg config.Server) {
	zerolog.SetGlobalLevel(cfg.LogLevel())
	if cfg.Logger.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
