package sdk

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"cyberlevels/api/httpapi"
	"cyberlevels/core"
	"cyberlevels/cyber"
	"cyberlevels/realtime"
)

const testUserID = "f84c6a08-3a5c-4b2e-9d41-08c2727e8a10"

// newTestServer runs the real HTTP surface on top of an in-memory service.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	hub := realtime.NewHub()
	svc, err := cyber.New(cyber.WithRealtime(hub))
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	mux := httpapi.NewMux(svc, hub, httpapi.Options{PathPrefix: "/api"})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_JoinExpAndGetUser(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(srv.URL+"/api", WithAPIKey("k1"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()

	joined, err := client.Join(ctx, testUserID, "Steve")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.UUID != testUserID || joined.Level != 1 {
		t.Fatalf("unexpected join view: %+v", joined)
	}

	// 250 clears levels 2 (110) and 3 (120) with 20 left over
	res, err := client.AddExp(ctx, testUserID, "250")
	if err != nil {
		t.Fatalf("add exp: %v", err)
	}
	if res.Level != 3 || res.Exp != "20" {
		t.Fatalf("unexpected result: %+v", res)
	}

	user, err := client.GetUser(ctx, testUserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Level != 3 || user.Exp != "20" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := client.SetLevel(ctx, testUserID, 5); err != nil {
		t.Fatalf("set level: %v", err)
	}
	if err := client.Leave(ctx, testUserID); err != nil {
		t.Fatalf("leave: %v", err)
	}

	health, err := client.Health(ctx)
	if err != nil || health.Status != "healthy" {
		t.Fatalf("health: %+v err=%v", health, err)
	}
}

func TestClient_Remove(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()
	if _, err := client.Join(ctx, testUserID, "Steve"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := client.AddExp(ctx, testUserID, "50"); err != nil {
		t.Fatalf("add exp: %v", err)
	}

	if err := client.Remove(ctx, testUserID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	_, err = client.GetUser(ctx, testUserID)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "user_not_found" {
		t.Fatalf("get after remove = %v, want user_not_found", err)
	}
}

func TestClient_Leaderboard(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()
	ids := []string{
		"11111111-1111-4111-8111-111111111111",
		"22222222-2222-4222-8222-222222222222",
	}
	for i, id := range ids {
		if _, err := client.Join(ctx, id, "p"); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	if _, err := client.AddExp(ctx, ids[1], "300"); err != nil {
		t.Fatalf("add exp: %v", err)
	}

	board, err := client.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].UUID != ids[1] || board[0].Position != 1 {
		t.Fatalf("unexpected board: %+v", board)
	}

	if err := client.RebuildLeaderboard(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := context.Background()
	if _, err := client.Join(ctx, testUserID, "Steve"); err != nil {
		t.Fatalf("join: %v", err)
	}

	_, err = client.AddExp(ctx, testUserID, "ten")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "invalid_amount" || apiErr.Status != 400 {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}

	_, err = client.GetUser(ctx, "99999999-9999-4999-8999-999999999999")
	if !errors.As(err, &apiErr) || apiErr.Code != "user_not_found" {
		t.Fatalf("expected user_not_found, got %v", err)
	}
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv := newTestServer(t)

	client, err := NewClient(srv.URL + "/api")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := client.Join(ctx, testUserID, "Steve"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := client.AddExp(ctx, testUserID, "50"); err != nil {
		t.Fatalf("add exp: %v", err)
	}

	select {
	case evt := <-events:
		if evt.Type != core.EventExpGained {
			t.Fatalf("unexpected event type: %s", evt.Type)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}
