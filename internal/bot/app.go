// Package bot binds the conversation dispatcher to Telegram: it translates
// updates into dispatcher events and replies into messages with keyboards.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/pondmobile/supportbot/core/config"
	"github.com/pondmobile/supportbot/core/logger"
	tg "github.com/pondmobile/supportbot/core/telegram"
	"github.com/pondmobile/supportbot/core/telegram/commands"
	tghelpers "github.com/pondmobile/supportbot/core/telegram/helpers"
	"github.com/pondmobile/supportbot/core/telegram/router"
	tgsender "github.com/pondmobile/supportbot/core/telegram/sender"
	"github.com/pondmobile/supportbot/internal/action"
	"github.com/pondmobile/supportbot/internal/atom"
	"github.com/pondmobile/supportbot/internal/dispatch"
	"github.com/pondmobile/supportbot/internal/grant"
	"github.com/pondmobile/supportbot/internal/identity"
	"github.com/pondmobile/supportbot/internal/otp"
	"github.com/pondmobile/supportbot/internal/session"
	"github.com/pondmobile/supportbot/internal/stats"
	"github.com/pondmobile/supportbot/internal/texts"
)

const sweepInterval = time.Minute

// App wires the support flows to a Telegram bot.
type App struct {
	dispatcher *dispatch.Dispatcher
	stats      *stats.Store
	engine     *otp.Engine
	grants     *grant.Cache
}

// NewApp assembles the application from config. db may be nil, in which
// case analytics counters are disabled.
func NewApp(cfg *config.Config, db *sqlx.DB) (*App, error) {
	client := atom.New(atom.Config{
		BaseURL: cfg.Atom.BaseURL,
		Token:   cfg.Atom.Token,
		Timeout: time.Duration(cfg.Atom.TimeoutSeconds) * time.Second,
	})

	idn := identity.NewService(client)
	if cfg.Auth.ManagersFile != "" {
		if err := idn.LoadManagers(cfg.Auth.ManagersFile); err != nil {
			return nil, fmt.Errorf("bot: load managers: %w", err)
		}
	}

	catalog := texts.NewCatalog(cfg.Texts.Dir)
	engine := otp.NewEngine(
		time.Duration(cfg.Auth.OTPTTLSeconds)*time.Second,
		cfg.Auth.OTPMaxAttempts,
	)
	grants := grant.NewCache(time.Duration(cfg.Auth.GrantTTLSeconds) * time.Second)
	sessions := session.NewStore()
	executor := action.NewExecutor(idn, client, catalog)

	var store *stats.Store
	var recorder dispatch.Recorder
	if db != nil {
		store = stats.NewStore(db)
		recorder = store
	}

	return &App{
		dispatcher: dispatch.New(sessions, engine, grants, idn, executor, client, catalog, recorder),
		stats:      store,
		engine:     engine,
		grants:     grants,
	}, nil
}

// RunOptions builds the Telegram runtime configuration for this app.
func (a *App) RunOptions(cfg *config.Config) tg.RunOptions {
	reg := tg.NewRegistry()
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.onStart,
		Description: "Open the main menu",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     a.onStats,
		Description: "Show activity counters",
		AdminOnly:   true,
		Hidden:      true,
	})

	for _, tag := range []string{
		dispatch.TagCheckUsage,
		dispatch.TagRefreshLine,
		dispatch.TagSupport,
		dispatch.TagSales,
		dispatch.TagMainMenu,
		dispatch.TagUsageSelf,
		dispatch.TagUsageOther,
		dispatch.TagRefreshSelf,
		dispatch.TagRefreshOther,
	} {
		_ = reg.RegisterCallback(tag, a.menuCallback(tag))
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: cfg.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.MessageRoutes(router.MessageOptions{
		Text:    a.onText,
		Contact: a.onContact,
	})...)

	return tg.RunOptions{
		Config:   cfg,
		Registry: reg,
		// replies within one conversation step must arrive in order
		DispatcherOptions: tgsender.Options{Workers: 1},
		Middlewares:       tg.DefaultMiddlewares(cfg, a.onRateLimited),
		Routes:            routes,
		OnStart: func(ctx context.Context, _ tg.Runtime) error {
			go a.sweepLoop(ctx)
			return nil
		},
	}
}

func (a *App) onRateLimited(c tele.Context) error {
	return tghelpers.SendText(c, "Easy there, give it a second and try again.")
}

// sweepLoop bounds memory growth by evicting expired challenges and grants.
// Correctness does not depend on it; expiry is also checked on every read.
func (a *App) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			codes := a.engine.Sweep()
			grants := a.grants.Sweep()
			if codes+grants > 0 {
				logger.Dispatch.Debug("sweep",
					"event", "sweep",
					"otp_removed", codes,
					"grants_removed", grants,
				)
			}
		}
	}
}
