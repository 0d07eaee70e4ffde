package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/pondmobile/supportbot/core/bootstrap"
	"github.com/pondmobile/supportbot/core/cmd"
	coreconfig "github.com/pondmobile/supportbot/core/config"
	coredatabase "github.com/pondmobile/supportbot/core/database"
	"github.com/pondmobile/supportbot/core/logger"
	coretelegram "github.com/pondmobile/supportbot/core/telegram"
	"github.com/pondmobile/supportbot/internal/bot"
)

// appConfig is the full on-disk configuration: the shared core sections plus
// the database block consumed by bootstrap.
type appConfig struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
}

func (c *appConfig) CoreConfig() *coreconfig.Config { return &c.Core }

func loadConfig(path string) (cmd.ConfigCarrier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg appConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type telegramApp struct {
	app *bot.App
	cfg *appConfig
}

func (t *telegramApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return t.app.RunOptions(t.cfg.CoreConfig()), nil
}

func buildApp(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg, ok := carrier.(*appConfig)
	if !ok {
		return nil, fmt.Errorf("unexpected config type %T", carrier)
	}

	// analytics are optional: without a database block the bot runs with
	// counters disabled
	var db *sqlx.DB
	if cfg.Database.Host != "" {
		result, err := bootstrap.Run(bootstrap.Options{
			Config:   cfg.CoreConfig(),
			Database: cfg.Database,
		})
		if err != nil {
			return nil, err
		}
		db = result.DB
	} else if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}

	app, err := bot.NewApp(cfg.CoreConfig(), db)
	if err != nil {
		return nil, err
	}
	return &telegramApp{app: app, cfg: cfg}, nil
}

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        loadConfig,
		Bootstrap:         buildApp,
	})
	if err != nil {
		log.Fatalf("supportbot: %v", err)
	}
}
