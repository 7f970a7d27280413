package telegram

import (
	"time"

	"attestbot/antispam"
	coreconfig "attestbot/core/config"
	"attestbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// DefaultMiddlewares builds the shared middleware chain for the bot.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited func(tele.Context) error) []Middleware {
	mws := []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
	}

	if cfg != nil && cfg.AntiSpam.MaxActions > 0 {
		guard := antispam.New(
			time.Duration(cfg.AntiSpam.WindowSeconds)*time.Second,
			cfg.AntiSpam.MaxActions,
		)
		mws = append(mws, Middleware{
			Name: "antispam",
			Use: middleware.AntiSpamMiddleware(middleware.AntiSpamOptions{
				Guard:     guard,
				OnLimited: onLimited,
			}),
		})
	}

	mws = append(mws,
		Middleware{Name: "logger", Use: middleware.LoggerMiddleware},
		Middleware{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	)

	return mws
}
