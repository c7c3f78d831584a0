package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/satindergrewal/ambience/internal/arrangement"
	"github.com/satindergrewal/ambience/internal/config"
	"github.com/satindergrewal/ambience/internal/maqam"
	"github.com/satindergrewal/ambience/internal/session"
)

const (
	maxTempo    = 300
	maxDuration = 1800 // seconds; captures are held in memory
)

// api serves the JSON control surface.
type api struct {
	defaults  config.Config
	catalog   *maqam.Catalog
	mgr       *session.Manager
	feed      *session.Feed
	setVolume  func(float64)
	setEffects func(reverb, delay float64)
	listeners  func() map[string]int

	mu     sync.Mutex
	last   session.Notification
	reverb float64
	delay  float64
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/start", post(a.handleStart))
	mux.HandleFunc("/api/pause", post(a.handlePause))
	mux.HandleFunc("/api/resume", post(a.handleResume))
	mux.HandleFunc("/api/stop", post(a.handleStop))
	mux.HandleFunc("/api/volume", post(a.handleVolume))
	mux.HandleFunc("/api/effects", post(a.handleEffects))
	mux.HandleFunc("/api/export", a.handleExport)
	mux.HandleFunc("/api/export/midi", a.handleExportMIDI)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/scales", a.handleScales)
	mux.HandleFunc("/api/presets", a.handlePresets)
	mux.HandleFunc("/api/events", a.handleEvents)
}

// follow keeps the latest notification for status until ctx ends.
func (a *api) follow(ctx context.Context) {
	ch := a.mgr.Subscribe()
	defer a.mgr.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-ch:
			a.mu.Lock()
			a.last = n
			a.mu.Unlock()
		}
	}
}

func post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type startRequest struct {
	Preset       string                  `json:"preset"`
	Scale        string                  `json:"scale"`
	Tempo        *float64                `json:"tempo"`
	Duration     *float64                `json:"duration"`
	Instruments  []arrangement.Selection `json:"instruments"`
	Seed         uint64                  `json:"seed"`
	MasterVolume *float64                `json:"master_volume"`
	Reverb       *float64                `json:"reverb"`
	Delay        *float64                `json:"delay"`
}

// mix holds the bank settings a start request changes. Nil leaves the
// current setting alone.
type mix struct {
	master, reverb, delay *float64
}

func unit(name string, v *float64) error {
	if v != nil && (*v < 0 || *v > 1) {
		return fmt.Errorf("%s must be in [0, 1]", name)
	}
	return nil
}

// resolve applies the preset, then explicit fields, then configured
// defaults, and validates the result.
func (a *api) resolve(req startRequest) (session.Request, mix, error) {
	var m mix
	out := session.Request{
		Scale:    a.defaults.Scale,
		BPM:      a.defaults.Tempo,
		Duration: a.defaults.Duration,
		Seed:     a.defaults.Seed,
	}
	if req.Preset != "" {
		p, ok := arrangement.Presets[req.Preset]
		if !ok {
			return out, m, fmt.Errorf("unknown preset %q", req.Preset)
		}
		out.Scale, out.BPM, out.Duration = p.Scale, p.BPM, p.Duration
		out.Selections = p.Selections
		m = mix{master: &p.MasterVolume, reverb: &p.Reverb, delay: &p.Delay}
	}
	if req.Scale != "" {
		out.Scale = req.Scale
	}
	if req.Tempo != nil {
		out.BPM = *req.Tempo
	}
	if req.Duration != nil {
		out.Duration = *req.Duration
	}
	if len(req.Instruments) > 0 {
		out.Selections = req.Instruments
	}
	if req.Seed != 0 {
		out.Seed = req.Seed
	}
	if req.MasterVolume != nil {
		m.master = req.MasterVolume
	}
	if req.Reverb != nil {
		m.reverb = req.Reverb
	}
	if req.Delay != nil {
		m.delay = req.Delay
	}

	if out.BPM <= 0 || out.BPM > maxTempo {
		return out, m, fmt.Errorf("tempo must be in (0, %d]", maxTempo)
	}
	if out.Duration <= 0 || out.Duration > maxDuration {
		return out, m, fmt.Errorf("duration must be in (0, %d] seconds", maxDuration)
	}
	if err := errors.Join(unit("master_volume", m.master), unit("reverb", m.reverb), unit("delay", m.delay)); err != nil {
		return out, m, err
	}
	return out, m, nil
}

// apply pushes mix settings to the bank.
func (a *api) apply(m mix) {
	if m.master != nil && a.setVolume != nil {
		a.setVolume(*m.master)
	}
	if m.reverb == nil && m.delay == nil {
		return
	}
	a.mu.Lock()
	if m.reverb != nil {
		a.reverb = *m.reverb
	}
	if m.delay != nil {
		a.delay = *m.delay
	}
	reverb, delay := a.reverb, a.delay
	a.mu.Unlock()
	if a.setEffects != nil {
		a.setEffects(reverb, delay)
	}
}

func (a *api) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	sreq, m, err := a.resolve(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.apply(m)

	id, err := a.mgr.RequestStart(sreq)
	switch {
	case errors.Is(err, session.ErrResourceUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case errors.Is(err, session.ErrNothingScheduled):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		log.Printf("Start failed: %v", err)
		http.Error(w, "start failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session_id": id, "status": a.mgr.Status()})
}

func (a *api) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := a.mgr.Pause(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": a.mgr.Status()})
}

func (a *api) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := a.mgr.Resume(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": a.mgr.Status()})
}

func (a *api) handleStop(w http.ResponseWriter, r *http.Request) {
	a.mgr.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": a.mgr.Status()})
}

func (a *api) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Volume < 0 || req.Volume > 1 {
		http.Error(w, "volume must be in [0, 1]", http.StatusBadRequest)
		return
	}
	if a.setVolume != nil {
		a.setVolume(req.Volume)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "volume": req.Volume})
}

func (a *api) handleEffects(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reverb *float64 `json:"reverb"`
		Delay  *float64 `json:"delay"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := errors.Join(unit("reverb", req.Reverb), unit("delay", req.Delay)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.apply(mix{reverb: req.Reverb, delay: req.Delay})

	a.mu.Lock()
	reverb, delay := a.reverb, a.delay
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reverb": reverb, "delay": delay})
}

// handleExport writes the latest take. POST returns the path; GET writes
// and downloads it. loop=1 exports the seamless-loop rendition.
func (a *api) handleExport(w http.ResponseWriter, r *http.Request) {
	loop, _ := strconv.ParseBool(r.URL.Query().Get("loop"))
	a.export(w, r, func() (string, error) { return a.mgr.Export(loop) }, "audio/wav")
}

func (a *api) handleExportMIDI(w http.ResponseWriter, r *http.Request) {
	a.export(w, r, a.mgr.ExportMIDI, "audio/midi")
}

func (a *api) export(w http.ResponseWriter, r *http.Request, write func() (string, error), contentType string) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "GET or POST required", http.StatusMethodNotAllowed)
		return
	}
	path, err := write()
	if errors.Is(err, session.ErrNoArtifact) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Export failed: %v", err)
		http.Error(w, "export failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("Exported %s", path)

	if r.Method == http.MethodGet {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(path)))
		w.Header().Set("Content-Type", contentType)
		http.ServeFile(w, r, path)
		return
	}
	take, _ := a.mgr.Artifact()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": path, "title": take.Title})
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	last := a.last
	effects := map[string]float64{"reverb": a.reverb, "delay": a.delay}
	a.mu.Unlock()

	resp := map[string]any{
		"session":      a.mgr.Status(),
		"effects":      effects,
		"message":      last.Message,
		"warning":      last.Warning,
		"visual_total": a.feed.Total(),
	}
	if last.Err != nil {
		resp["error"] = last.Err.Error()
	}
	if a.listeners != nil {
		resp["listeners"] = a.listeners()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleScales(w http.ResponseWriter, r *http.Request) {
	type scaleInfo struct {
		ID          string        `json:"id"`
		Name        string        `json:"name"`
		Description string        `json:"description"`
		Tonic       maqam.Pitch   `json:"tonic"`
		Character   string        `json:"character"`
		Pitches     []maqam.Pitch `json:"pitches"`
	}
	var out []scaleInfo
	for _, id := range a.catalog.IDs() {
		s := a.catalog.Lookup(id)
		out = append(out, scaleInfo{s.ID, s.Name, s.Description, s.Tonic, s.Character, s.Pitches})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handlePresets(w http.ResponseWriter, r *http.Request) {
	var out []arrangement.Preset
	for _, name := range arrangement.PresetNames() {
		out = append(out, arrangement.Presets[name])
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleEvents(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	if n <= 0 {
		n = 100
	}
	writeJSON(w, http.StatusOK, a.feed.Recent(n))
}
