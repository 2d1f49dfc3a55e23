package guider

import (
	"bytes"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/altair-obs/helioscope/internal/mount"
)

type nudgeCall struct {
	direction  mount.Direction
	durationMs int
}

type fakeMount struct {
	mu    sync.Mutex
	calls []nudgeCall
}

func (f *fakeMount) Nudge(direction mount.Direction, durationMs int, rate string) error {
	f.mu.Lock()
	f.calls = append(f.calls, nudgeCall{direction: direction, durationMs: durationMs})
	f.mu.Unlock()
	return nil
}

func (f *fakeMount) nudges() []nudgeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]nudgeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type recordSink struct {
	mu   sync.Mutex
	last map[string]any
}

func newRecordSink() *recordSink { return &recordSink{last: make(map[string]any)} }

func (s *recordSink) Publish(event string, payload any) {
	s.mu.Lock()
	s.last[event] = payload
	s.mu.Unlock()
}

func (s *recordSink) lastPayload(event string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.last[event]
	return p, ok
}

func testConfig() Config {
	return Config{
		TargetFPS:      5,
		DownscaleWidth: 480,
		BlurSize:       5,
		MinArea:        80,
		LockRadius:     8,
		LockHoldFrames: 3,
		Deadband:       5,
		GainMsPerPx:    4,
		MinPulseMs:     40,
		MaxPulseMs:     600,
		AxisInterval:   120 * time.Millisecond,
		JPEGQuality:    70,
	}
}

func TestDecide_DeadbandSuppressesPulses(t *testing.T) {
	g := New(&fakeMount{}, nil, testConfig())

	if out := g.decide(3, 3, 4.2, time.Now()); out != nil {
		t.Errorf("corrections inside deadband: %v", out)
	}
}

func TestDecide_LockHysteresis(t *testing.T) {
	g := New(&fakeMount{}, nil, testConfig())
	now := time.Now()

	// Inside the lock radius (and deadband, so no pulses muddy state).
	g.decide(1, 1, 2, now)
	if g.locked {
		t.Fatal("locked after 1 frame, want 3")
	}
	g.decide(1, 1, 2, now)
	if g.locked {
		t.Fatal("locked after 2 frames, want 3")
	}
	g.decide(1, 1, 2, now)
	if !g.locked {
		t.Fatal("not locked after 3 qualifying frames")
	}

	// One excursion drops the streak below the hold threshold.
	g.decide(20, 0, 20, now.Add(time.Second))
	if g.locked {
		t.Error("still locked after streak fell below hold threshold")
	}

	// One good frame restores it.
	g.decide(1, 1, 2, now.Add(2*time.Second))
	if !g.locked {
		t.Error("lock not restored once streak recovered")
	}
}

func TestDecide_PulseDurationClamped(t *testing.T) {
	g := New(&fakeMount{}, nil, testConfig())

	// Just past the deadband: gain*6 = 24ms, below the 40ms floor.
	out := g.decide(6, 0, 6, time.Now())
	if len(out) != 1 || out[0].durationMs != 40 {
		t.Errorf("small error corrections = %v, want one 40ms pulse", out)
	}

	g2 := New(&fakeMount{}, nil, testConfig())
	// Huge error: gain*300 = 1200ms, above the 600ms ceiling.
	out = g2.decide(300, 0, 300, time.Now())
	if len(out) != 1 || out[0].durationMs != 600 {
		t.Errorf("large error corrections = %v, want one 600ms pulse", out)
	}
}

func TestDecide_RefractoryPerAxis(t *testing.T) {
	g := New(&fakeMount{}, nil, testConfig())
	now := time.Now()

	first := g.decide(20, 20, 28.3, now)
	if len(first) != 2 {
		t.Fatalf("first decide = %v, want RA and Dec corrections", first)
	}

	// 10ms later both axes are still refractory.
	second := g.decide(20, 20, 28.3, now.Add(10*time.Millisecond))
	if len(second) != 0 {
		t.Errorf("decide inside refractory = %v, want none", second)
	}

	// After the interval both fire again.
	third := g.decide(20, 20, 28.3, now.Add(150*time.Millisecond))
	if len(third) != 2 {
		t.Errorf("decide after refractory = %v, want 2", third)
	}
}

func TestDecide_PerAxisDeadband(t *testing.T) {
	g := New(&fakeMount{}, nil, testConfig())

	// Radial error exceeds the deadband but dy alone does not.
	out := g.decide(10, 1, 10.05, time.Now())
	if len(out) != 1 {
		t.Fatalf("corrections = %v, want RA only", out)
	}
	if out[0].direction != mount.East {
		t.Errorf("direction = %v, want east", out[0].direction)
	}
}

func TestDecide_DirectionMapping(t *testing.T) {
	tests := []struct {
		name    string
		dx, dy  float64
		flipRA  bool
		flipDec bool
		want    []mount.Direction
	}{
		{name: "dx positive east", dx: 20, want: []mount.Direction{mount.East}},
		{name: "dx negative west", dx: -20, want: []mount.Direction{mount.West}},
		{name: "dy positive south", dy: 20, want: []mount.Direction{mount.South}},
		{name: "dy negative north", dy: -20, want: []mount.Direction{mount.North}},
		{name: "ra flipped", dx: 20, flipRA: true, want: []mount.Direction{mount.West}},
		{name: "dec flipped", dy: 20, flipDec: true, want: []mount.Direction{mount.North}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.FlipRA = tt.flipRA
			cfg.FlipDec = tt.flipDec
			g := New(&fakeMount{}, nil, cfg)

			r := tt.dx
			if r == 0 {
				r = tt.dy
			}
			if r < 0 {
				r = -r
			}

			out := g.decide(tt.dx, tt.dy, r, time.Now())
			if len(out) != len(tt.want) {
				t.Fatalf("corrections = %v, want %d", out, len(tt.want))
			}
			for i, dir := range tt.want {
				if out[i].direction != dir {
					t.Errorf("direction[%d] = %v, want %v", i, out[i].direction, dir)
				}
			}
		})
	}
}

func TestGuider_ClosedLoop(t *testing.T) {
	// Disk offset right and below center: expect east and south pulses.
	img := diskImage(200, 150, 150, 110, 25)
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, img, &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpg.Bytes())
	}))
	defer srv.Close()

	mnt := &fakeMount{}
	sink := newRecordSink()
	cfg := testConfig()
	cfg.URL = srv.URL
	cfg.TargetFPS = 20
	g := New(mnt, sink, cfg)

	g.Start()
	g.Start() // second call is a no-op

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(mnt.nudges()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	g.Stop()

	calls := mnt.nudges()
	if len(calls) < 2 {
		t.Fatalf("got %d nudges, want at least RA and Dec corrections", len(calls))
	}
	seen := map[mount.Direction]bool{}
	for _, c := range calls {
		seen[c.direction] = true
		if c.durationMs < 40 || c.durationMs > 600 {
			t.Errorf("pulse duration %dms outside clamp bounds", c.durationMs)
		}
	}
	if !seen[mount.East] || !seen[mount.South] {
		t.Errorf("directions = %v, want east and south", seen)
	}

	overlay, ok := sink.lastPayload("guiding_overlay")
	if !ok {
		t.Fatal("no overlay published")
	}
	if !strings.HasPrefix(overlay.(string), "data:image/jpeg;base64,") {
		t.Error("overlay is not a JPEG data URL")
	}

	pulsePayload, ok := sink.lastPayload("guide_pulse")
	if !ok {
		t.Fatal("no pulse event published")
	}
	pulse := pulsePayload.(Pulse)
	if pulse.Session != g.Session() {
		t.Errorf("pulse session = %q, want %q", pulse.Session, g.Session())
	}
	if pulse.DurationMs < 40 || pulse.DurationMs > 600 {
		t.Errorf("pulse event duration %dms outside clamp bounds", pulse.DurationMs)
	}

	status := g.Status()
	if status.State != StateIdle {
		t.Errorf("state after Stop = %q, want IDLE", status.State)
	}
	if status.Session == "" {
		t.Error("status carries no session id")
	}
}

func TestGuider_NoFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	sink := newRecordSink()
	cfg := testConfig()
	cfg.URL = srv.URL
	g := New(&fakeMount{}, sink, cfg)

	g.iterate()

	payload, ok := sink.lastPayload("guiding_status")
	if !ok {
		t.Fatal("no status published")
	}
	// The guider is not running, so the published state degrades to IDLE,
	// but no pulse or overlay must have been produced.
	if _, ok := sink.lastPayload("guiding_overlay"); ok {
		t.Error("overlay published for a failed fetch")
	}
	if st := payload.(Status); st.DX != nil {
		t.Errorf("status carries an error vector: %+v", st)
	}
}

func TestGuider_StopIdempotent(t *testing.T) {
	g := New(&fakeMount{}, nil, testConfig())

	g.Stop()
	g.Stop()

	if g.Running() {
		t.Error("Running() = true for never-started guider")
	}
}
