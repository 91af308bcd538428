package command

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SafeVault/wallet-service/internal/api"
	"github.com/SafeVault/wallet-service/internal/config"
)

// NewSubcommandGroup 创建一个只做分组的父命令
func NewSubcommandGroup(use string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use: use,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				log.Fatal().Err(err).Msg("Failed to print help")
			}
		},
	}
	cmd.AddCommand(subcommands...)
	return cmd
}

// WithServer 初始化组件后执行回调，执行完不启动 HTTP 服务
// 一次性管理命令（探针、注册工具）都走这个入口
func WithServer(ctx context.Context, cfg config.Server, fn func(ctx context.Context, s *api.Server) error) error {
	s := api.NewServer(cfg)
	if err := s.InitComponents(); err != nil {
		return err
	}
	defer func() {
		if err := s.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to shut down server cleanly")
		}
	}()
	return fn(ctx, s)
}
