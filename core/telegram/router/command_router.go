package router

import (
	"log/slog"
	"time"

	"attestbot/core/logger"
	tg "attestbot/core/telegram"
	"attestbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes prepares command handlers wrapped with shared middleware.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		name := normalizeHandlerName(cmd)
		inner := def.Handler
		h := func(c tele.Context) error {
			start := time.Now()
			return handleWithSummary(c, name, start, "", func() error {
				return inner(c)
			})
		}
		h = middleware.LoggerMiddleware(h)
		h = middleware.RecoverMiddleware(h)
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler:  h,
		})
	}

	logger.TG.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)

	return routes
}

// TextRoute builds the fallback handler for free-form text. Commands typed
// without the menu still resolve through the registry; anything else lands
// on the registry's text fallback.
func TextRoute(reg *tg.Registry) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
			return handleWithSummary(c, normalizeHandlerName(key), start, "", func() error {
				return cmd.Handler(c)
			})
		}

		if fb := reg.TextFallback(); fb != nil {
			return handleWithSummary(c, "fallback", start, "", func() error {
				return fb(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", nil)
		return nil
	}

	return tg.Route{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
