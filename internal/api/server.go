package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/SafeVault/wallet-service/internal/config"
	"github.com/SafeVault/wallet-service/internal/soroban"
	"github.com/SafeVault/wallet-service/internal/vault"
	"github.com/SafeVault/wallet-service/internal/vault/challenge"
	"github.com/SafeVault/wallet-service/internal/vault/registry"
	"github.com/SafeVault/wallet-service/internal/vault/txsubmit"
)

// Router 路由分组
type Router struct {
	Routes []*echo.Route
	Root   *echo.Group
	APIV1  *echo.Group
}

// Server API 服务
type Server struct {
	Config    config.Server
	Echo      *echo.Echo
	Router    *Router
	RPC       *soroban.RPCClient
	Builder   *txsubmit.Builder
	Submitter *txsubmit.Submitter
	Store     challenge.Store
	Binder    *challenge.Binder
	Registry  *registry.Client
	Vault     *vault.Service

	closeStore func()
}

// NewServer 创建未初始化的服务实例
func NewServer(cfg config.Server) *Server {
	return &Server{Config: cfg}
}

// InitComponents 初始化全部组件
// 顺序固定：RPC 客户端、会话密钥、构造器、提交管道、存储、注册客户端、门面
func (s *Server) InitComponents() error {
	if s.Config.Contract.ID == "" {
		return errors.New("contract ID is not configured")
	}

	s.RPC = soroban.NewRPCClient(s.Config.Soroban.RPCEndpoint)

	sessionKey, err := NewSessionKeypair(s.Config)
	if err != nil {
		return err
	}

	s.Builder = txsubmit.NewBuilder(s.Config.Contract.ID, s.Config.Contract.NetworkPassphrase)
	s.Submitter = txsubmit.NewSubmitter(s.RPC, s.Builder, sessionKey).
		WithPolling(s.Config.Soroban.PollAttempts, s.Config.Soroban.PollInterval)

	s.Store, s.closeStore = NewChallengeStore(s.Config)
	s.Binder = challenge.NewBinder(s.Store, challenge.DefaultTTL)
	s.Registry = registry.NewClient(s.Submitter, s.Builder, s.Store)
	s.Vault = vault.NewService(s.Registry, s.Submitter, s.Builder, s.Config.Contract.RelyingPartyID).
		WithBinder(s.Binder)

	log.Info().
		Str("contract_id", s.Config.Contract.ID).
		Str("rpc_endpoint", s.Config.Soroban.RPCEndpoint).
		Str("session_account", s.Submitter.SessionAddress()).
		Msg("Components initialized")
	return nil
}

// Ready 各组件是否已初始化完毕
func (s *Server) Ready() bool {
	return s.Echo != nil && s.Vault != nil
}

// Start 启动 HTTP 服务
func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready, call InitComponents and InitRoutes first")
	}
	return s.Echo.Start(s.Config.Echo.ListenAddress)
}

// Shutdown 优雅停机
func (s *Server) Shutdown(ctx context.Context) error {
	log.Warn().Msg("Shutting down server")
	if s.closeStore != nil {
		s.closeStore()
	}
	if s.Echo != nil {
		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	return nil
}
