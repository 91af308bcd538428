package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/SafeVault/wallet-service/internal/api"
	"github.com/SafeVault/wallet-service/internal/api/handlers/vault"
)

// AttachAllRoutes 注册全部业务路由
func AttachAllRoutes(s *api.Server) {
	s.Router.Routes = []*echo.Route{
		vault.PostChallengeRoute(s),
		vault.PostRegisterSignerRoute(s),
		vault.GetRegistrationRoute(s),
		vault.PostExecutePaymentRoute(s),
		vault.PostDepositRoute(s),
		vault.GetBalanceRoute(s),
	}
}
