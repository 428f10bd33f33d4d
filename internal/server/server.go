package server

import (
	"context"
	"leadwallet/internal/client"
	"leadwallet/internal/config"
	"leadwallet/internal/handler"
	"leadwallet/internal/middleware"
	"leadwallet/internal/pricing"
	"leadwallet/internal/repository"
	"leadwallet/internal/session"
	"leadwallet/pkg/logger"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo            *echo.Echo
	sessionHandler  *handler.SessionHandler
	walletHandler   *handler.WalletHandler
	checkoutHandler *handler.CheckoutHandler
}

func NewServer(
	cfg *config.Config,
	sessions *session.Manager,
	bridge client.GatewayBridge,
	prices *pricing.Table,
	attempts repository.AttemptRepository,
	log *logger.Logger,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(sessions, log)

	e.Use(middleware.RequestID())
	e.Use(requestLogger(log.Named("http")))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s := &Server{
		echo:            e,
		sessionHandler:  handler.NewSessionHandler(sessions),
		walletHandler:   handler.NewWalletHandler(sessions, prices, attempts),
		checkoutHandler: handler.NewCheckoutHandler(sessions, bridge, cfg.BaseURL, log),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	auth := middleware.Auth()

	s.echo.GET("/checkout.js", s.checkoutHandler.Script)

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	api.GET("/pricing", s.walletHandler.Pricing)

	// -------- session --------
	api.POST("/session", s.sessionHandler.Open, auth)
	api.DELETE("/session", s.sessionHandler.Close, auth)

	// -------- wallet --------
	api.GET("/wallet", s.walletHandler.GetWallet, auth)
	api.POST("/wallet/refresh", s.walletHandler.Refresh, auth)
	api.GET("/wallet/recharge", s.walletHandler.RechargeState, auth)
	api.POST("/wallet/recharge", s.walletHandler.StartRecharge, auth)
	api.POST("/wallet/recharge/prompt", s.walletHandler.Prompt, auth)

	// -------- subscription --------
	api.GET("/subscription", s.walletHandler.SubscriptionState, auth)
	api.POST("/subscription", s.walletHandler.StartSubscription, auth)

	// -------- checkout host page / gateway callbacks --------
	checkout := api.Group("/checkout")
	checkout.GET("/attempts", s.walletHandler.Attempts, auth)
	checkout.GET("/:orderID", s.checkoutHandler.Page)
	checkout.POST("/:orderID/success", s.checkoutHandler.Success)
	checkout.POST("/:orderID/dismiss", s.checkoutHandler.Dismiss)
	checkout.POST("/:orderID/failure", s.checkoutHandler.Failure)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				log.Warnw("request", append(fields, "error", v.Error)...)
				return nil
			}
			log.Infow("request", fields...)
			return nil
		},
	})
}
