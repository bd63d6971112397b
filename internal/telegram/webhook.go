package telegram

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// WebhookServer receives Telegram updates over HTTPS instead of long
// polling.
type WebhookServer struct {
	bot    *Bot
	echo   *echo.Echo
	addr   string
	logger *zap.Logger
}

// NewWebhookServer builds the HTTP surface for webhook mode. path is the
// route Telegram posts updates to.
func NewWebhookServer(bot *Bot, addr, path string, logger *zap.Logger) *WebhookServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = "/telegram/webhook"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &WebhookServer{
		bot:    bot,
		echo:   e,
		addr:   addr,
		logger: logger,
	}

	e.POST(path, s.handleUpdate)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	return s
}

func (s *WebhookServer) handleUpdate(c echo.Context) error {
	var update Update
	if err := c.Bind(&update); err != nil {
		s.logger.Warn("malformed webhook update", zap.Error(err))
		return c.NoContent(http.StatusBadRequest)
	}

	// Telegram retries on non-2xx, so dispatch errors are logged and
	// swallowed; the capture ledger keeps retries harmless.
	s.bot.HandleUpdate(c.Request().Context(), update)
	return c.NoContent(http.StatusOK)
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *WebhookServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.addr)
	}()

	s.logger.Info("webhook server listening", zap.String("addr", s.addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return ctx.Err()
	}
}
