package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/calshare/calshare/internal/app"
	"github.com/calshare/calshare/internal/config"
	"github.com/calshare/calshare/internal/database"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
	_ "time/tzdata"
)

func init() {
	level := os.Getenv("LOG_LEVEL")
	if level != "" {
		logrusLevel, err := log.ParseLevel(level)
		if err != nil {
			log.Fatal(err)
		}
		log.SetLevel(logrusLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func main() {
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  "calshare",
		Usage: "Keep local calendars in sync with Google and Microsoft calendars.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "./config/application.yaml", Usage: "path to the configuration file"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the sync scheduler.",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit.",
				Action: migrate,
			},
			{
				Name:  "sync",
				Usage: "Synchronize one connection now and exit.",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "connection", Required: true, Usage: "id of the connection to synchronize"},
				},
				Action: syncConnection,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (config.Application, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Application{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	if os.Getenv("LOG_LEVEL") == "" {
		if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
			log.SetLevel(level)
		} else {
			log.Warnf("unknown log level %q", cfg.Log.Level)
		}
	}
	if cfg.Log.File != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}))
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	application, err := app.NewApplication(c.Context, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run()
}

func migrate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	version, err := database.Migrate(cfg.Database)
	if err != nil {
		return err
	}
	log.Infof("Database schema is at version %d", version)
	return nil
}

func syncConnection(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := app.SyncConnection(ctx, cfg, c.Int("connection"))
	if err != nil {
		return err
	}
	log.Infof("Synchronized connection %d: %+v", c.Int("connection"), result)
	return nil
}
