package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/curvelaunch/botworker/internal/domain"
	"github.com/curvelaunch/botworker/internal/inference"
)

// fakeRepo implements the subset of store.Repository health checks use.
type fakeRepo struct {
	pingErr error
}

func (f *fakeRepo) ListActiveBots(context.Context) ([]*domain.BotRecord, error) { return nil, nil }
func (f *fakeRepo) GetBot(context.Context, string) (*domain.BotRecord, error)   { return nil, nil }
func (f *fakeRepo) UpsertBot(context.Context, *domain.BotRecord) error          { return nil }
func (f *fakeRepo) UpdateBotStatus(context.Context, string, domain.BotStatus, string) error {
	return nil
}
func (f *fakeRepo) Ping(context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error               { return nil }

type fakeProber struct {
	err error
}

func (f *fakeProber) Probe(context.Context) error { return f.err }

func doHealth(t *testing.T, repo *fakeRepo, prober *fakeProber) (*http.Response, HealthResponse) {
	t.Helper()
	h := NewHealthHandler(repo, prober, time.Second)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.Health(w, r)

	resp := w.Result()
	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	return resp, body
}

func checkByName(t *testing.T, checks []Check, name string) Check {
	t.Helper()
	for _, c := range checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("Expected a %q check, got %v", name, checks)
	return Check{}
}

func TestHealth_AllOK(t *testing.T) {
	resp, body := doHealth(t, &fakeRepo{}, &fakeProber{})

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if body.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", body.Status)
	}
	if body.Service != ServiceName {
		t.Errorf("Expected service %q, got %q", ServiceName, body.Service)
	}
	if len(body.Checks) != 2 {
		t.Fatalf("Expected 2 checks, got %v", body.Checks)
	}
}

func TestHealth_StoreDown(t *testing.T) {
	resp, body := doHealth(t, &fakeRepo{pingErr: errors.New("connection refused")}, &fakeProber{})

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
	if body.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", body.Status)
	}

	db := checkByName(t, body.Checks, "database")
	if db.Status != "error" {
		t.Errorf("Expected database check error, got %s", db.Status)
	}
	inf := checkByName(t, body.Checks, "inference")
	if inf.Status != "ok" {
		t.Errorf("Expected inference check ok, got %s", inf.Status)
	}
}

func TestHealth_InferenceDown(t *testing.T) {
	resp, body := doHealth(t, &fakeRepo{}, &fakeProber{err: errors.New("no route to host")})

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for degraded, got %d", resp.StatusCode)
	}
	if body.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", body.Status)
	}
	if checkByName(t, body.Checks, "inference").Status != "error" {
		t.Errorf("Expected inference check error, got %v", body.Checks)
	}
}

func TestHealth_ModelLoading(t *testing.T) {
	resp, body := doHealth(t, &fakeRepo{}, &fakeProber{err: inference.ErrModelLoading})

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for degraded, got %d", resp.StatusCode)
	}
	if body.Status != StatusDegraded {
		t.Errorf("Expected degraded while model loads, got %s", body.Status)
	}
	if checkByName(t, body.Checks, "inference").Status != "loading" {
		t.Errorf("Expected inference check loading, got %v", body.Checks)
	}
}

func TestHealth_BothDown(t *testing.T) {
	resp, body := doHealth(t,
		&fakeRepo{pingErr: errors.New("db gone")},
		&fakeProber{err: errors.New("inference gone")})

	// Store failure dominates the aggregate.
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
	if body.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", body.Status)
	}
}
