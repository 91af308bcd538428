package api

import (
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/stellar/go/keypair"

	"github.com/SafeVault/wallet-service/internal/config"
	"github.com/SafeVault/wallet-service/internal/vault/challenge"
)

// NewSessionKeypair 解析会话密钥种子
func NewSessionKeypair(cfg config.Server) (*keypair.Full, error) {
	if cfg.Contract.SessionKeySeed == "" {
		return nil, errors.New("session key seed is not configured")
	}
	kp, err := keypair.ParseFull(cfg.Contract.SessionKeySeed)
	if err != nil {
		return nil, errors.Wrap(err, "invalid session key seed")
	}
	return kp, nil
}

// NewChallengeStore 按配置选择 challenge/注册状态存储
// Redis 不可用不是启动失败：退回进程内存储并记警告
func NewChallengeStore(cfg config.Server) (challenge.Store, func()) {
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using redis challenge store")
		return challenge.NewRedisStore(client), func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close redis client")
			}
		}
	}

	store := challenge.NewMemoryStore(time.Minute)
	log.Info().Msg("Using in-memory challenge store")
	return store, store.Close
}
