package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/user/scrollterm/internal/api"
	"github.com/user/scrollterm/internal/config"
	"github.com/user/scrollterm/internal/db"
	"github.com/user/scrollterm/internal/hub"
	"github.com/user/scrollterm/internal/scrollback"
	"github.com/user/scrollterm/internal/server"
	"github.com/user/scrollterm/internal/term"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	sessionRepo := db.NewSessionRepo(database.SQL())

	registry, err := scrollback.NewRegistry(cfg.ScrollbackLines)
	if err != nil {
		slog.Error("invalid scrollback capacity", "error", err)
		os.Exit(1)
	}
	backend := term.NewBackend(registry)
	defer backend.Close()

	h := hub.New(cfg.Token,
		func(sessionID, data string) {
			if err := backend.SendInput(ctx, sessionID, data); err != nil {
				slog.Warn("input dropped", "session", sessionID, "error", err)
			}
		},
		func(sessionID string, cols, rows int) {
			if err := backend.Resize(ctx, sessionID, cols, rows); err != nil {
				slog.Warn("resize failed", "session", sessionID, "error", err)
			}
		},
	)
	go h.Run(ctx)

	backend.SetEventSink(func(evt term.Event) {
		switch evt.Type {
		case term.EventOutput:
			h.BroadcastOutput(evt.ID, string(evt.Data))
		case term.EventCreated:
			h.BroadcastSessions(hubSessionList(backend))
		case term.EventClosed:
			// Batched output must hit the wire before the status change.
			h.FlushPendingOutput()
			h.BroadcastStatus(evt.ID, "exited")
			h.BroadcastSessions(hubSessionList(backend))
			if err := sessionRepo.MarkEnded(ctx, evt.ID, "exited"); err != nil {
				slog.Warn("failed to mark session ended", "session", evt.ID, "error", err)
			}
		}
	})

	apiHandler := api.NewRouter(backend, database.SQL(), cfg.Token, cfg.Shell)

	srv, err := server.New(cfg, h, database.SQL(), apiHandler)
	if err != nil {
		slog.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	if cfg.PrintToken {
		fmt.Printf("\nscrollterm running at http://localhost:%d?token=%s\n\n", cfg.Port, cfg.Token)
	}

	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// hubSessionList converts the backend's session snapshot into the shape the
// hub announces to WebSocket clients.
func hubSessionList(backend *term.Backend) []hub.SessionInfo {
	infos := backend.List()
	list := make([]hub.SessionInfo, 0, len(infos))
	for _, info := range infos {
		status := "running"
		if !info.Active {
			status = "exited"
		}
		list = append(list, hub.SessionInfo{ID: info.ID, Name: info.Name, Status: status})
	}
	return list
}
