package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/SafeVault/wallet-service/internal/api/httperrors"
)

// InitRouter 初始化 echo 实例、中间件与路由分组
// 具体路由由各 handler 包通过 AttachAllRoutes 注册
func (s *Server) InitRouter() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(s)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger())

	s.Echo = e
	s.Router = &Router{
		Root:  e.Group(""),
		APIV1: e.Group("/api/v1"),
	}

	// 探针与指标不走 API 分组
	e.GET("/-/healthy", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/-/ready", func(c echo.Context) error {
		if err := s.RPC.GetHealth(c.Request().Context()); err != nil {
			return c.String(http.StatusServiceUnavailable, err.Error())
		}
		return c.String(http.StatusOK, "ready")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// errorHandler 统一错误出口
// vaulterr 分类映射为状态码，其他错误按 5xx 处理并按配置隐藏细节
func errorHandler(s *Server) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var httpErr *httperrors.HTTPError
		switch e := err.(type) {
		case *httperrors.HTTPError:
			httpErr = e
		case *echo.HTTPError:
			title := http.StatusText(e.Code)
			if msg, ok := e.Message.(string); ok {
				title = msg
			}
			httpErr = httperrors.NewHTTPError(e.Code, httperrors.TypeGeneric, title)
		default:
			httpErr = httperrors.FromError(err)
		}

		if httpErr.Code >= 500 {
			log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
			if s.Config.Echo.HideInternalServerErrorDetails && httpErr.ErrorKind == "" {
				httpErr.Title = http.StatusText(httpErr.Code)
			}
		}

		if err := c.JSON(httpErr.Code, httpErr); err != nil {
			log.Error().Err(err).Msg("Failed to write error response")
		}
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Err(v.Error).
				Msg("Request")
			return nil
		},
	})
}
