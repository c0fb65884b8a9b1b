package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	mem "cyberlevels/adapters/memory"
	ws "cyberlevels/adapters/websocket"
	"cyberlevels/core"
	"cyberlevels/engine"
	"cyberlevels/levels"
	"cyberlevels/numeric"
	"cyberlevels/realtime"
)

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	ctx := context.Background()

	system, err := levels.NewSystem[float64](numeric.Float64{}, levels.DefaultOptions())
	if err != nil {
		slog.Error("invalid leveling options", "error", err)
		os.Exit(1)
	}

	bus := engine.NewEventBus(engine.DispatchAsync, nil)
	svc := engine.NewService(system, mem.New(), engine.Options{Bus: bus})

	// Forward progression events to WebSocket clients
	hub := realtime.NewHub()
	hub.AttachBus(bus)

	http.Handle("/ws", ws.Handler(hub))
	http.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		// routes: POST /users/{id}/join?name=, POST /users/{id}/exp?amount=50,
		// GET /users/{id}
		parts := split(r.URL.Path, '/')
		if len(parts) < 2 {
			http.NotFound(w, r)
			return
		}
		user, err := core.ParseUserID(parts[1])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodPost:
			if len(parts) >= 3 && parts[2] == "join" {
				view, err := svc.Join(ctx, user, r.URL.Query().Get("name"))
				writeJSON(w, map[string]any{"user": view, "err": errString(err)})
				return
			}
			if len(parts) >= 3 && parts[2] == "exp" {
				amount := r.URL.Query().Get("amount")
				source := core.ExpSource(r.URL.Query().Get("source"))
				res, err := svc.EarnExp(ctx, user, amount, source)
				writeJSON(w, map[string]any{"result": res, "err": errString(err)})
				return
			}
		case http.MethodGet:
			view, err := svc.GetUser(ctx, user)
			if err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			writeJSON(w, view)
			return
		}
		http.NotFound(w, r)
	})
	http.HandleFunc("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Leaderboard(ctx))
	})

	slog.Info("starting demo server on :8080")

	if err := http.ListenAndServe(":8080", nil); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func errString(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}

func split(p string, sep rune) []string {
	var parts []string
	current := make([]rune, 0, len(p))

	for _, r := range p {
		if r == sep {
			if len(current) > 0 {
				parts = append(parts, string(current))
				current = current[:0]
			}
			continue
		}
		current = append(current, r)
	}

	if len(current) > 0 {
		parts = append(parts, string(current))
	}

	return parts
}
