package main

import (
	"context"
	"log/slog"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gofiber/fiber/v2"

	"dotchat/internal/chat"
	"dotchat/internal/config"
	"dotchat/internal/handlers"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	registry := chat.NewRegistry(logger, cfg.Rooms)
	h := handlers.New(registry, cfg.MaxWait)

	app := fiber.New(fiber.Config{AppName: "dotchat"})

	// Browser client assets.
	app.Static("/", cfg.StaticDir)

	// Room lifecycle & polling
	app.Post("/rooms/:id", h.CreateRoom)
	app.Get("/rooms/:id/ping", h.Ping)
	app.Get("/rooms/:id", h.Poll) // ?from=&channels=  Prefer: wait=N

	// Roster
	app.Post("/rooms/:id/players", h.Join)      // body: name
	app.Delete("/rooms/:id/players", h.Leave)   // body: name

	// Messages & channels
	app.Post("/rooms/:id/messages", h.PostMessage)
	app.Post("/rooms/:id/channels", h.OpenChannel)              // ?from=&to=
	app.Delete("/rooms/:id/channels", h.CloseChannel)           // ?from=&to=
	app.Get("/rooms/:id/channels/:channelId", h.Snoop)          // ?from=

	go func() {
		if err := app.Listen(cfg.Addr); err != nil {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("listening", "addr", cfg.Addr)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return app.Shutdown()
			},
			"rooms": func(ctx context.Context) error {
				registry.Close()
				return nil
			},
		},
	)
	os.Exit(<-wait)
}
