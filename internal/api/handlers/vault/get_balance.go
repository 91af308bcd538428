package vault

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/SafeVault/wallet-service/internal/api"
	"github.com/SafeVault/wallet-service/internal/api/httperrors"
	"github.com/SafeVault/wallet-service/internal/vault/txsubmit"
)

// GetBalanceRoute 注册余额查询路由
func GetBalanceRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/vault/balances/:user", getBalanceHandler(s))
}

// BalanceResponse 余额响应：同时给出 stroops 和十进制数量
type BalanceResponse struct {
	User    string `json:"user"`
	Asset   string `json:"asset"`
	Stroops int64  `json:"stroops"`
	Amount  string `json:"amount"`
}

func getBalanceHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := c.Param("user")
		asset := c.QueryParam("asset")
		if asset == "" {
			asset = s.Config.Contract.NativeAssetContract
		}
		if user == "" || asset == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "user and asset are required")
		}

		stroops, err := s.Vault.GetBalance(c.Request().Context(), user, asset)
		if err != nil {
			return httperrors.FromError(err)
		}
		return c.JSON(http.StatusOK, &BalanceResponse{
			User:    user,
			Asset:   asset,
			Stroops: stroops,
			Amount:  txsubmit.FormatAmount(stroops),
		})
	}
}
