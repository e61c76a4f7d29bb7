// Package monitor holds the live state of one exam session.
package monitor

import (
	"sync"
	"time"

	"exam-proctor-be/pkg/proctor/detection"
	"exam-proctor-be/pkg/proctor/ring"
	"exam-proctor-be/pkg/proctor/scorer"
	"exam-proctor-be/pkg/proctor/tracker"
)

const (
	DefaultHistoryCapacity = 100
	DefaultFrameCapacity   = 10
)

// Meta identifies the session and the people attached to it.
type Meta struct {
	SessionID   string `json:"session_id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	ExamID      string `json:"exam_id"`
}

type Config struct {
	HistoryCapacity int
	FrameCapacity   int
	Tracker         tracker.Config
}

func DefaultConfig() Config {
	return Config{
		HistoryCapacity: DefaultHistoryCapacity,
		FrameCapacity:   DefaultFrameCapacity,
		Tracker:         tracker.DefaultConfig(),
	}
}

// Frame is one raw encoded image as received from the client.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// ScoreDelta describes what one Ingest call changed.
type ScoreDelta struct {
	Appended         int
	ScoreAdded       int
	Eligible         []detection.Detection
	EvidenceEligible []detection.Detection
}

// Monitor is safe for concurrent use. All state sits behind mu, and no
// method performs I/O while holding it.
type Monitor struct {
	meta      Meta
	createdAt time.Time

	mu           sync.Mutex
	lastActivity time.Time
	tracker      *tracker.Tracker
	history      *ring.Buffer[detection.Detection]
	frames       *ring.Buffer[Frame]
	counts       map[detection.Kind]int
	observations int
	closed       bool
}

func New(meta Meta, cfg Config, now time.Time) *Monitor {
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = DefaultHistoryCapacity
	}
	if cfg.FrameCapacity <= 0 {
		cfg.FrameCapacity = DefaultFrameCapacity
	}
	return &Monitor{
		meta:         meta,
		createdAt:    now,
		lastActivity: now,
		tracker:      tracker.New(cfg.Tracker),
		history:      ring.New[detection.Detection](cfg.HistoryCapacity),
		frames:       ring.New[Frame](cfg.FrameCapacity),
		counts:       make(map[detection.Kind]int),
	}
}

func (m *Monitor) Meta() Meta { return m.meta }

func (m *Monitor) SessionID() string { return m.meta.SessionID }

func (m *Monitor) CreatedAt() time.Time { return m.createdAt }

// BufferFrame keeps data as the latest frame. The slice is retained, not copied.
func (m *Monitor) BufferFrame(data []byte, at time.Time) {
	if len(data) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames.Push(Frame{Data: data, Timestamp: at})
	m.touchLocked(at)
}

// LatestFrame returns the most recently buffered frame.
func (m *Monitor) LatestFrame() (Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames.Latest()
}

// Observe feeds one face-count observation through the temporal tracker and
// counts it as an analysed observation.
func (m *Monitor) Observe(faceCount int, now time.Time) []detection.Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observations++
	m.touchLocked(now)
	return m.tracker.Observe(faceCount, now)
}

// Ingest appends every detection to history, whatever its confidence, and
// reports which ones cleared the policy thresholds.
func (m *Monitor) Ingest(ds []detection.Detection, p scorer.Policy) ScoreDelta {
	var delta ScoreDelta
	if len(ds) == 0 {
		return delta
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range ds {
		m.history.Push(d)
		m.counts[d.Kind]++
		delta.Appended++
		delta.ScoreAdded += p.Weight(d.Kind)
		if p.AlertEligible(d) {
			delta.Eligible = append(delta.Eligible, d)
		}
		if p.EvidenceEligible(d) {
			delta.EvidenceEligible = append(delta.EvidenceEligible, d)
		}
		m.touchLocked(d.Timestamp)
	}
	return delta
}

// Summary recomputes the suspicion record from stored state and p.
func (m *Monitor) Summary(p scorer.Policy) scorer.SuspicionRecord {
	m.mu.Lock()
	counts := make(map[detection.Kind]int, len(m.counts))
	for k, v := range m.counts {
		counts[k] = v
	}
	history := m.history.Snapshot()
	observations := m.observations
	m.mu.Unlock()

	return scorer.Summarize(counts, history, observations, p)
}

// History returns the retained detections, oldest first.
func (m *Monitor) History() []detection.Detection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Snapshot()
}

func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Close releases buffered frames. Callers already holding the monitor may
// keep using it; only the registry stops handing it out.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.frames.Reset()
}

func (m *Monitor) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Monitor) touchLocked(at time.Time) {
	if at.After(m.lastActivity) {
		m.lastActivity = at
	}
}
