package config

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Server 服务全量配置
// 所有字段都可以通过 VAULT_ 前缀的环境变量覆盖，层级用下划线展开
type Server struct {
	Echo     EchoServer
	Soroban  Soroban
	Contract Contract
	Redis    Redis
	Logger   Logger
}

// EchoServer HTTP 服务配置
type EchoServer struct {
	ListenAddress string
	// HideInternalServerErrorDetails 对外隐藏 5xx 的内部细节
	HideInternalServerErrorDetails bool
}

// Soroban RPC 节点与提交管道配置
type Soroban struct {
	RPCEndpoint  string
	PollAttempts int
	PollInterval time.Duration
}

// Contract vault 合约与网络配置
type Contract struct {
	// ID vault 合约地址（C...）
	ID string
	// NetworkPassphrase 网络口令
	NetworkPassphrase string
	// SessionKeySeed 会话密钥种子（S...），对信封做经典签名
	SessionKeySeed string
	// RelyingPartyID WebAuthn RP ID
	RelyingPartyID string
	// NativeAssetContract 原生资产的 SAC 地址，余额查询缺省用它
	NativeAssetContract string
}

// Redis challenge 与注册状态存储配置
type Redis struct {
	// Enabled 为 false 时退回进程内存储
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// Logger 日志配置
type Logger struct {
	Level              string
	PrettyPrintConsole bool
}

// DefaultServiceConfigFromEnv 读取环境变量并套默认值
func DefaultServiceConfigFromEnv() Server {
	v := viper.New()
	v.SetEnvPrefix("VAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("echo.listen_address", ":8080")
	v.SetDefault("echo.hide_internal_server_error_details", true)
	v.SetDefault("soroban.rpc_endpoint", "https://soroban-testnet.stellar.org")
	v.SetDefault("soroban.poll_attempts", 15)
	v.SetDefault("soroban.poll_interval", 2*time.Second)
	v.SetDefault("contract.id", "")
	v.SetDefault("contract.network_passphrase", "Test SDF Network ; September 2015")
	v.SetDefault("contract.session_key_seed", "")
	v.SetDefault("contract.relying_party_id", "")
	v.SetDefault("contract.native_asset_contract", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.pretty_print_console", false)

	return Server{
		Echo: EchoServer{
			ListenAddress:                  v.GetString("echo.listen_address"),
			HideInternalServerErrorDetails: v.GetBool("echo.hide_internal_server_error_details"),
		},
		Soroban: Soroban{
			RPCEndpoint:  v.GetString("soroban.rpc_endpoint"),
			PollAttempts: v.GetInt("soroban.poll_attempts"),
			PollInterval: v.GetDuration("soroban.poll_interval"),
		},
		Contract: Contract{
			ID:                  v.GetString("contract.id"),
			NetworkPassphrase:   v.GetString("contract.network_passphrase"),
			SessionKeySeed:      v.GetString("contract.session_key_seed"),
			RelyingPartyID:      v.GetString("contract.relying_party_id"),
			NativeAssetContract: v.GetString("contract.native_asset_contract"),
		},
		Redis: Redis{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Logger: Logger{
			Level:              v.GetString("logger.level"),
			PrettyPrintConsole: v.GetBool("logger.pretty_print_console"),
		},
	}
}

// LogLevel 解析日志级别，解析失败退回 info
func (c Server) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Logger.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
