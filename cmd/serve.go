package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/deskmate/internal/actions"
	"github.com/deskmate/internal/api"
	"github.com/deskmate/internal/chat"
	"github.com/deskmate/internal/config"
	"github.com/deskmate/internal/logging"
	"github.com/deskmate/internal/permissions"
	"github.com/deskmate/internal/store"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Deskmate API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Server.LogLevel, false)

	ctx := context.Background()
	pool, err := store.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	conversations := store.NewConversationStore(pool)
	credentialStore := permissions.NewPGStore(pool)
	refresher := permissions.NewGoogleRefresher(cfg.Google.ClientID, cfg.Google.ClientSecret)
	credentials := permissions.NewProvider(credentialStore, refresher)

	registry := actions.NewRegistry(cfg.Chat.DefaultTimeZone)
	classifier := chat.NewIntentClassifier(registry.Names())
	pacer := chat.SleepPacer{Delay: cfg.Chat.NarrationDelay}

	streamer := chat.NewStreamer(classifier, registry, credentials, conversations, pacer, cfg.Chat.ModelTimeout)

	handlers := api.NewHandlers(cfg, conversations, credentialStore, streamer)
	server := api.NewServer(cfg, handlers)

	fmt.Printf("Starting Deskmate API server on port %d...\n", cfg.Server.Port)
	return server.Start()
}
