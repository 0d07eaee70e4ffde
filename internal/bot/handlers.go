package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/pondmobile/supportbot/core/telegram/helpers"
	"github.com/pondmobile/supportbot/internal/dispatch"
)

// deliver sends each reply in order, translating menu kinds and flags into
// telebot send options.
func (a *App) deliver(c tele.Context, replies []dispatch.Reply) error {
	for _, r := range replies {
		opts := &tele.SendOptions{
			ReplyMarkup:           markupFor(r.Menu),
			DisableWebPagePreview: r.NoPreview,
		}
		if r.Markdown {
			opts.ParseMode = tele.ModeMarkdown
		}
		if err := tghelpers.SendText(c, r.Text, opts); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) handleEvent(c tele.Context, ev dispatch.Event) error {
	ctx := tghelpers.BuildContext(c)
	return a.deliver(c, a.dispatcher.Handle(ctx, c.Chat().ID, ev))
}

func (a *App) onStart(c tele.Context) error {
	return a.handleEvent(c, dispatch.Start{})
}

func (a *App) onText(c tele.Context) error {
	return a.handleEvent(c, dispatch.FreeText{Text: c.Text()})
}

func (a *App) onContact(c tele.Context) error {
	contact := c.Message().Contact
	return a.handleEvent(c, dispatch.ContactShared{
		Phone:    contact.PhoneNumber,
		OwnerID:  contact.UserID,
		SenderID: c.Sender().ID,
	})
}

// menuCallback builds a callback handler that forwards the tag to the
// dispatcher.
func (a *App) menuCallback(tag string) tele.HandlerFunc {
	return func(c tele.Context) error {
		return a.handleEvent(c, dispatch.MenuSelect{Tag: tag})
	}
}

// onStats is the admin-only counter report.
func (a *App) onStats(c tele.Context) error {
	if a.stats == nil {
		return tghelpers.SendText(c, "Analytics are not enabled.")
	}

	ctx, cancel := context.WithTimeout(tghelpers.BuildContext(c), 5*time.Second)
	defer cancel()

	counters, err := a.stats.Snapshot(ctx)
	if err != nil {
		return tghelpers.SendText(c, "Could not read counters: "+err.Error())
	}
	if len(counters) == 0 {
		return tghelpers.SendText(c, "No activity recorded yet.")
	}

	var b strings.Builder
	b.WriteString("Activity counters:\n")
	for _, cnt := range counters {
		fmt.Fprintf(&b, "• %s: %d\n", cnt.Name, cnt.Value)
	}
	return tghelpers.SendText(c, b.String())
}
