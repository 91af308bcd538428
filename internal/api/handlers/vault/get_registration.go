package vault

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/SafeVault/wallet-service/internal/api"
	"github.com/SafeVault/wallet-service/internal/api/httperrors"
	"github.com/SafeVault/wallet-service/internal/types"
)

// GetRegistrationRoute 注册状态查询路由
func GetRegistrationRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1.GET("/vault/signers/:signer", getRegistrationHandler(s))
}

// RegistrationStatusResponse 注册状态响应
type RegistrationStatusResponse struct {
	Signer string                  `json:"signer"`
	State  types.RegistrationState `json:"state"`
}

func getRegistrationHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		signer := c.Param("signer")
		if signer == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeGeneric, "signer is required")
		}

		state, err := s.Vault.CheckRegistration(c.Request().Context(), signer)
		if err != nil {
			return httperrors.FromError(err)
		}
		return c.JSON(http.StatusOK, &RegistrationStatusResponse{Signer: signer, State: state})
	}
}
