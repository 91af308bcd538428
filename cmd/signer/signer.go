package signer

import (
	"context"
	"encoding/pem"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SafeVault/wallet-service/internal/api"
	"github.com/SafeVault/wallet-service/internal/config"
	"github.com/SafeVault/wallet-service/internal/types"
	"github.com/SafeVault/wallet-service/internal/util/command"
	"github.com/SafeVault/wallet-service/internal/vault/txsubmit"
)

// New 签名者管理命令组
func New() *cobra.Command {
	return command.NewSubcommandGroup("signer",
		newRegister(),
		newStatus(),
		newBalance(),
	)
}

// newRegister 从 PEM 公钥文件注册签名者
func newRegister() *cobra.Command {
	var keyFile string
	var allowRotation bool

	cmd := &cobra.Command{
		Use:   "register <signer-address>",
		Short: "Register a signer's passkey public key on the contract",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			cfg := config.DefaultServiceConfigFromEnv()
			err := command.WithServer(context.Background(), cfg, func(ctx context.Context, s *api.Server) error {
				wrapped, err := readPublicKey(keyFile)
				if err != nil {
					return err
				}
				result, err := s.Vault.RegisterSigner(ctx, &types.RegisterSignerRequest{
					Signer:           args[0],
					WrappedPublicKey: wrapped,
					RelyingPartyID:   cfg.Contract.RelyingPartyID,
					AllowRotation:    allowRotation,
				})
				if err != nil {
					return err
				}
				log.Info().
					Str("signer", args[0]).
					Str("state", string(result.State)).
					Str("tx_hash", result.TxHash).
					Bool("rotated", result.Rotated).
					Msg("Registration finished")
				return nil
			})
			if err != nil {
				log.Fatal().Err(err).Msg("Registration failed")
			}
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "Path to the SPKI public key (PEM or raw DER)")
	cmd.Flags().BoolVar(&allowRotation, "allow-rotation", false, "Replace an existing key that does not match")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newStatus() *cobra.Command {
	return &cobra.Command{
		Use:   "status <signer-address>",
		Short: "Show a signer's registration state",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			cfg := config.DefaultServiceConfigFromEnv()
			err := command.WithServer(context.Background(), cfg, func(ctx context.Context, s *api.Server) error {
				state, err := s.Vault.CheckRegistration(ctx, args[0])
				if err != nil {
					return err
				}
				log.Info().Str("signer", args[0]).Str("state", string(state)).Msg("Registration state")
				return nil
			})
			if err != nil {
				log.Fatal().Err(err).Msg("Status check failed")
			}
		},
	}
}

func newBalance() *cobra.Command {
	var asset string

	cmd := &cobra.Command{
		Use:   "balance <user-address>",
		Short: "Show a user's on-contract balance",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			cfg := config.DefaultServiceConfigFromEnv()
			err := command.WithServer(context.Background(), cfg, func(ctx context.Context, s *api.Server) error {
				target := asset
				if target == "" {
					target = cfg.Contract.NativeAssetContract
				}
				stroops, err := s.Vault.GetBalance(ctx, args[0], target)
				if err != nil {
					return err
				}
				log.Info().
					Str("user", args[0]).
					Str("asset", target).
					Int64("stroops", stroops).
					Str("amount", txsubmit.FormatAmount(stroops)).
					Msg("Balance")
				return nil
			})
			if err != nil {
				log.Fatal().Err(err).Msg("Balance query failed")
			}
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "Asset contract address (defaults to the configured native asset)")
	return cmd
}

// readPublicKey 读取 PEM 或裸 DER 的 SPKI 公钥
func readPublicKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read key file %s", path)
	}
	if block, _ := pem.Decode(raw); block != nil {
		return block.Bytes, nil
	}
	return raw, nil
}
