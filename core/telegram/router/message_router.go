package router

import (
	"time"

	tg "github.com/pondmobile/supportbot/core/telegram"
	"github.com/pondmobile/supportbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MessageOptions declares handlers for free-text and shared-contact updates.
type MessageOptions struct {
	Text    tele.HandlerFunc
	Contact tele.HandlerFunc
}

// MessageRoutes builds routes for text and contact updates wrapped with the
// shared middleware chain and per-handler summary logging.
func MessageRoutes(opts MessageOptions) []tg.Route {
	textHandler := func(c tele.Context) error {
		start := time.Now()
		if opts.Text == nil {
			logHandlerSummary(c, "text", start, "skip", "ok", nil)
			return nil
		}
		return handleWithSummary(c, "text", start, "", "", func() error {
			return opts.Text(c)
		})
	}

	contactHandler := func(c tele.Context) error {
		start := time.Now()
		if c.Message() == nil || c.Message().Contact == nil {
			logHandlerSummary(c, "contact", start, "skip", "ok", nil)
			return nil
		}
		if opts.Contact == nil {
			logHandlerSummary(c, "contact", start, "skip", "ok", nil)
			return nil
		}
		return handleWithSummary(c, "contact", start, "", "", func() error {
			return opts.Contact(c)
		})
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(textHandler)),
		},
		{
			Endpoint: tele.OnContact,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(contactHandler)),
		},
	}
}
