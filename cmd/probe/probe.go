package probe

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SafeVault/wallet-service/internal/config"
	"github.com/SafeVault/wallet-service/internal/soroban"
)

const probeTimeout = 5 * time.Second

// New 探针命令组
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Liveness and readiness probes against the configured RPC node",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				log.Fatal().Err(err).Msg("Failed to print help")
			}
		},
	}
	cmd.AddCommand(newLiveness(), newReadiness())
	return cmd
}

// newLiveness 只验证 RPC 节点可达且自称健康
func newLiveness() *cobra.Command {
	return &cobra.Command{
		Use:   "liveness",
		Short: "Check that the RPC node answers getHealth",
		Run: func(_ *cobra.Command, _ []string) {
			cfg := config.DefaultServiceConfigFromEnv()
			ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
			defer cancel()

			rpc := soroban.NewRPCClient(cfg.Soroban.RPCEndpoint)
			if err := rpc.GetHealth(ctx); err != nil {
				log.Fatal().Err(err).Msg("Liveness probe failed")
			}
			log.Info().Msg("Liveness probe passed")
		},
	}
}

// newReadiness 进一步验证节点在跟账本
func newReadiness() *cobra.Command {
	return &cobra.Command{
		Use:   "readiness",
		Short: "Check that the RPC node is healthy and tracking the ledger",
		Run: func(_ *cobra.Command, _ []string) {
			cfg := config.DefaultServiceConfigFromEnv()
			ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
			defer cancel()

			rpc := soroban.NewRPCClient(cfg.Soroban.RPCEndpoint)
			if err := rpc.GetHealth(ctx); err != nil {
				log.Fatal().Err(err).Msg("Readiness probe failed on getHealth")
			}
			ledger, err := rpc.GetLatestLedger(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("Readiness probe failed on getLatestLedger")
			}
			log.Info().Uint32("sequence", ledger.Sequence).Msg("Readiness probe passed")
		},
	}
}
