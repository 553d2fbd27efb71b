package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/curvelaunch/botworker/internal/bot"
)

type fakeRegistry struct {
	bots       []bot.LoadedBot
	reconciles int64
}

func (f *fakeRegistry) Loaded() []bot.LoadedBot { return f.bots }
func (f *fakeRegistry) ReconcileCount() int64   { return f.reconciles }

func TestStatus(t *testing.T) {
	registry := &fakeRegistry{
		bots: []bot.LoadedBot{
			{TokenMint: "MintA", Users: 3},
			{TokenMint: "MintB", Users: 0},
		},
		reconciles: 7,
	}
	h := NewStatusHandler(registry, time.Now().Add(-90*time.Second))

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode status response: %v", err)
	}

	if body.Service != ServiceName {
		t.Errorf("Expected service %q, got %q", ServiceName, body.Service)
	}
	if body.Reconciles != 7 {
		t.Errorf("Expected 7 reconciles, got %d", body.Reconciles)
	}
	if len(body.Bots) != 2 || body.Bots[0].TokenMint != "MintA" || body.Bots[0].Users != 3 {
		t.Errorf("Expected bot snapshot passed through, got %v", body.Bots)
	}
	if body.UptimeSeconds < 89 {
		t.Errorf("Expected uptime around 90s, got %d", body.UptimeSeconds)
	}
}

func TestStatus_EmptyRegistry(t *testing.T) {
	h := NewStatusHandler(&fakeRegistry{}, time.Now())

	w := httptest.NewRecorder()
	h.Status(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	var body StatusResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode status response: %v", err)
	}
	if body.Bots == nil || len(body.Bots) != 0 {
		t.Errorf("Expected empty bots array, got %v", body.Bots)
	}
}
