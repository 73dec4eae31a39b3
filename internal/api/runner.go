package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/atmx/market-sim/internal/sim"
)

// DefaultSpeed advances one simulated day per real second.
const DefaultSpeed = 86400

// Runner advances the service on a fixed real-time interval while running
// and persists a snapshot every SnapshotEvery simulated days.
type Runner struct {
	svc           *Service
	interval      time.Duration
	snapshotEvery int

	mu           sync.Mutex
	running      bool
	speed        float64
	lastSnapshot int
}

// NewRunner creates a paused runner. speed is in simulated seconds per real
// second; snapshotEvery <= 0 disables periodic snapshots.
func NewRunner(svc *Service, interval time.Duration, speed float64, snapshotEvery int) *Runner {
	if interval <= 0 {
		interval = time.Second
	}
	if speed <= 0 {
		speed = DefaultSpeed
	}
	return &Runner{
		svc:           svc,
		interval:      interval,
		snapshotEvery: snapshotEvery,
		speed:         speed,
		lastSnapshot:  svc.State().Day,
	}
}

// RunnerStatus is the JSON view of the runner.
type RunnerStatus struct {
	Running  bool     `json:"running"`
	Speed    float64  `json:"speed"`
	Interval string   `json:"interval"`
	Day      int      `json:"day"`
	Presets  []string `json:"presets"`
}

// Status reports whether the runner is advancing and how fast.
func (r *Runner) Status() RunnerStatus {
	var presets []string
	for _, sp := range r.svc.engine.Catalog().Speeds {
		presets = append(presets, sp.Label)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return RunnerStatus{
		Running:  r.running,
		Speed:    r.speed,
		Interval: r.interval.String(),
		Day:      r.svc.State().Day,
		Presets:  presets,
	}
}

// Start resumes advancing.
func (r *Runner) Start() { r.setRunning(true) }

// Pause stops advancing after the current step.
func (r *Runner) Pause() { r.setRunning(false) }

func (r *Runner) setRunning(on bool) {
	r.mu.Lock()
	changed := r.running != on
	r.running = on
	r.mu.Unlock()
	if changed {
		slog.Info("runner state changed", "running", on)
		r.broadcastStatus()
	}
}

// SetSpeed changes the simulated seconds advanced per real second.
func (r *Runner) SetSpeed(speed float64) {
	r.mu.Lock()
	r.speed = speed
	r.mu.Unlock()
	r.broadcastStatus()
}

func (r *Runner) broadcastStatus() {
	if r.svc.wsHub == nil {
		return
	}
	st := r.Status()
	r.svc.wsHub.Broadcast(WSMessage{Type: MsgRunner, Day: st.Day, Time: r.svc.State().Time, Data: st})
}

// Run drives the simulation until ctx is done. Must be called in a
// goroutine.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			running := r.running
			r.mu.Unlock()
			if running {
				r.Step(ctx)
			}
		}
	}
}

// Step advances one interval's worth of simulated time regardless of the
// running flag and snapshots when a snapshot period has elapsed.
func (r *Runner) Step(ctx context.Context) AdvanceResult {
	r.mu.Lock()
	seconds := r.speed * r.interval.Seconds()
	r.mu.Unlock()

	res := r.svc.Advance(ctx, seconds)

	r.mu.Lock()
	due := r.snapshotEvery > 0 && res.Day-r.lastSnapshot >= r.snapshotEvery
	if due || res.Day < r.lastSnapshot {
		r.lastSnapshot = res.Day
	}
	r.mu.Unlock()

	if due {
		if _, err := r.svc.Snapshot(ctx); err != nil {
			slog.Warn("periodic snapshot failed", "day", res.Day, "err", err)
		}
	}
	return res
}

// SpeedRequest is the JSON body for PUT /sim/speed. Preset takes priority
// over Speed when set.
type SpeedRequest struct {
	Speed  float64 `json:"speed"`
	Preset string  `json:"preset"`
}

// preset resolves a catalog speed label such as "1d/s".
func (r *Runner) preset(label string) (float64, bool) {
	for _, sp := range r.svc.engine.Catalog().Speeds {
		if sp.Label == label {
			return float64(sp.Seconds), true
		}
	}
	return 0, false
}

// GetStatus handles GET /api/v1/sim
func (r *Runner) GetStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.Status())
}

// PostStart handles POST /api/v1/sim/start
func (r *Runner) PostStart(w http.ResponseWriter, req *http.Request) {
	r.Start()
	writeJSON(w, http.StatusOK, r.Status())
}

// PostPause handles POST /api/v1/sim/pause
func (r *Runner) PostPause(w http.ResponseWriter, req *http.Request) {
	r.Pause()
	writeJSON(w, http.StatusOK, r.Status())
}

// PutSpeed handles PUT /api/v1/sim/speed
func (r *Runner) PutSpeed(w http.ResponseWriter, req *http.Request) {
	var body SpeedRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	speed := body.Speed
	if body.Preset != "" {
		v, ok := r.preset(body.Preset)
		if !ok {
			writeError(w, "unknown speed preset: "+body.Preset, http.StatusBadRequest)
			return
		}
		speed = v
	}
	if !(speed > 0) || math.IsInf(speed, 0) {
		writeError(w, "speed must be positive", http.StatusBadRequest)
		return
	}
	if speed*r.interval.Seconds() > sim.MaxAdvanceSeconds {
		writeError(w, "speed exceeds the maximum advance per tick", http.StatusBadRequest)
		return
	}

	r.SetSpeed(speed)
	writeJSON(w, http.StatusOK, r.Status())
}
