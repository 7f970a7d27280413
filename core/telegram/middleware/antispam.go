package middleware

import (
	"errors"
	"log/slog"

	"attestbot/antispam"
	"attestbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// AntiSpamOptions configures behaviour of the anti-spam middleware.
type AntiSpamOptions struct {
	Guard     *antispam.Guard
	OnLimited tele.HandlerFunc
}

// AntiSpamMiddleware returns a middleware that throttles users who exceed
// the configured action budget inside the sliding window. Rejected updates
// never reach the handlers.
func AntiSpamMiddleware(opts AntiSpamOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Guard == nil {
				return next(c)
			}
			err := opts.Guard.Allow(user.ID)
			if err == nil {
				return next(c)
			}

			var limited *antispam.RateLimitedError
			if errors.As(err, &limited) {
				logger.TG.Warn("rate limit",
					slog.String("event", "tg.rate_limit"),
					slog.Int64("user_id", user.ID),
					slog.String("err_code", limited.Code()),
					slog.Int64("duration_ms", limited.RetryIn.Milliseconds()),
				)
			}
			if c.Callback() != nil {
				_ = c.Respond(&tele.CallbackResponse{Text: "Too many actions, slow down"})
				return nil
			}
			if opts.OnLimited != nil {
				return opts.OnLimited(c)
			}
			return nil
		}
	}
}
