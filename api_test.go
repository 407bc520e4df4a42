package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aboutcue/server/store"
)

// newTestAPI creates an APIServer over a fresh engine and hub with a
// temporary uploads directory.
func newTestAPI(t *testing.T) (*APIServer, *Engine) {
	t.Helper()
	e, _, _ := newTestEngine(t)
	hub := NewEventHub()
	e.SetOnEvent(hub.Broadcast)
	return NewAPIServer(e, hub, t.TempDir()), e
}

func TestHealthEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleHealth(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status field: got %q", resp.Status)
	}
}

func TestVersionEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleVersion(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var resp VersionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Version != Version {
		t.Errorf("version: got %q", resp.Version)
	}
}

func TestGetCuesEmpty(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cues", nil)
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleGetCues(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty cue list should marshal as [], got %s", body)
	}
}

func TestAnnotateEndpoint(t *testing.T) {
	api, e := newTestAPI(t)
	e.Store().Upsert(store.Key{List: 1, Number: "5", Part: 0}, store.CueUpdate{Label: "Opening"})

	body := `{"cueList":1,"cueNumber":"5","partNumber":0,"notes":"watch the scrim","color":"#ff0000","tags":["fx"]}`
	req := httptest.NewRequest(http.MethodPut, "/api/cues/annotation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleAnnotate(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status: got %d", rec.Code)
	}

	cue, _ := e.Store().Get(store.Key{List: 1, Number: "5", Part: 0})
	if cue.Notes != "watch the scrim" || cue.Color != "#ff0000" || len(cue.Tags) != 1 {
		t.Errorf("annotation not applied: %+v", cue)
	}
	if cue.Label != "Opening" {
		t.Errorf("annotation must not touch console fields: label=%q", cue.Label)
	}
}

func TestAnnotateUnknownCue(t *testing.T) {
	api, _ := newTestAPI(t)

	body := `{"cueList":1,"cueNumber":"99","notes":"x"}`
	req := httptest.NewRequest(http.MethodPut, "/api/cues/annotation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	err := api.handleAnnotate(c)
	if err == nil {
		t.Fatal("expected error for unknown cue")
	}
}

// TestAnnotatePartialUpdate — absent fields stay untouched.
func TestAnnotatePartialUpdate(t *testing.T) {
	api, e := newTestAPI(t)
	k := store.Key{List: 1, Number: "5", Part: 0}
	e.Store().Upsert(k, store.CueUpdate{})
	notes := "keep me"
	if err := e.Store().Annotate(k, store.Annotation{Notes: &notes}); err != nil {
		t.Fatal(err)
	}

	body := `{"cueList":1,"cueNumber":"5","page":"p. 3"}`
	req := httptest.NewRequest(http.MethodPut, "/api/cues/annotation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleAnnotate(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	cue, _ := e.Store().Get(k)
	if cue.Notes != "keep me" || cue.Page != "p. 3" {
		t.Errorf("partial update wrong: notes=%q page=%q", cue.Notes, cue.Page)
	}
}

func TestRefreshNotConnected(t *testing.T) {
	api, e := newTestAPI(t)
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	err := api.handleRefresh(c)
	if err == nil {
		t.Fatal("expected conflict while disconnected")
	}
}

func TestShowSwitchEndpoint(t *testing.T) {
	api, e := newTestAPI(t)
	e.Store().Upsert(store.Key{List: 1, Number: "5", Part: 0}, store.CueUpdate{Label: "a"})

	body := `{"name":"Autumn Tour"}`
	req := httptest.NewRequest(http.MethodPost, "/api/shows/switch", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleSwitchShow(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if e.Store().ShowName() != "Autumn Tour" {
		t.Errorf("show: got %q", e.Store().ShowName())
	}
	if n := len(e.Store().Cues()); n != 0 {
		t.Errorf("new show should start empty, got %d cues", n)
	}
	if e.Settings().LastShowName != "Autumn Tour" {
		t.Errorf("lastShowName: got %q", e.Settings().LastShowName)
	}
}

func TestRecordingToggleEndpoint(t *testing.T) {
	api, e := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/timings/recording", strings.NewReader(`{"enabled":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handleRecording(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !e.Store().Timings().IsRecording {
		t.Error("recording should be on")
	}
}

func TestSettingsValidation(t *testing.T) {
	api, _ := newTestAPI(t)

	body := `{"lastShowName":"Default","mainPlaybackList":"1","oscSettings":{"ip_address":"10.0.0.5","port":3032,"osc_version":"1.1","protocol":"quic"}}`
	req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handlePutSettings(c); err == nil {
		t.Fatal("expected rejection of unknown protocol")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	api, e := newTestAPI(t)

	body := `{"lastShowName":"Default","mainPlaybackList":"4","oscSettings":{"ip_address":"10.0.0.5","port":8000,"osc_version":"1.0","protocol":"udp"}}`
	req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := api.echo.NewContext(req, rec)

	if err := api.handlePutSettings(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	got := e.Settings()
	if got.OSC.IPAddress != "10.0.0.5" || got.OSC.Protocol != "udp" || got.OSC.Port != 8000 {
		t.Errorf("settings: %+v", got.OSC)
	}
	if e.MainList() != 4 {
		t.Errorf("main list: got %d", e.MainList())
	}
}

func TestSceneAndTagColorEndpoints(t *testing.T) {
	api, e := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPut, "/api/scenes",
		strings.NewReader(`{"name":"Act One","notes":"warm","color":"#112233"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	if err := api.handlePutScene(api.echo.NewContext(req, rec)); err != nil {
		t.Fatalf("scene: %v", err)
	}
	if got := e.Store().Scenes()["Act One"]; got.Notes != "warm" {
		t.Errorf("scene: %+v", got)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/tags/colors",
		strings.NewReader(`{"tag":"fx","color":"#00ff00"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	if err := api.handlePutTagColor(api.echo.NewContext(req, rec)); err != nil {
		t.Fatalf("tag color: %v", err)
	}
	if got := e.Store().TagColors()["fx"]; got != "#00ff00" {
		t.Errorf("tag color: got %q", got)
	}
}
