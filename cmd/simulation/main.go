// Command simulation replays scripted proctoring scenarios against the
// in-process engine and reports whether each one behaves as expected.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"exam-proctor-be/internal/pkg/logger"
	"exam-proctor-be/pkg/proctor/capability"
	"exam-proctor-be/pkg/proctor/detection"
	"exam-proctor-be/pkg/proctor/fusion"
	"exam-proctor-be/pkg/proctor/monitor"
	"exam-proctor-be/pkg/proctor/registry"
	"exam-proctor-be/pkg/proctor/scorer"

	"github.com/fatih/color"
)

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type scenario struct {
	name string
	run  func() error
}

func main() {
	color.Cyan("🚀 Replaying proctoring scenarios\n")

	scenarios := []scenario{
		{"A. Absence fires once the threshold is crossed", scenarioAbsence},
		{"B. Three faces yield one multiple_faces detection", scenarioMultipleFaces},
		{"C. 0.75 confidence alerts without evidence", scenarioAlertWithoutEvidence},
		{"D. Destroyed session is unknown", scenarioDestroyed},
		{"E. History keeps the last 100 of 150", scenarioHistoryBound},
	}

	failed := 0
	for _, s := range scenarios {
		color.Yellow("\n[SCENARIO] %s", s.name)
		if err := s.run(); err != nil {
			failed++
			color.Red("FAIL: %v", err)
			continue
		}
		color.Green("PASS")
	}

	fmt.Println()
	if failed > 0 {
		color.Red("%d of %d scenarios failed", failed, len(scenarios))
		os.Exit(1)
	}
	color.Green("✅ All %d scenarios passed", len(scenarios))
}

func newMonitor() *monitor.Monitor {
	return monitor.New(monitor.Meta{SessionID: "sim-session", StudentID: "sim-student", ExamID: "sim-exam"}, monitor.DefaultConfig(), epoch)
}

func scenarioAbsence() error {
	m := newMonitor()
	steps := []struct {
		faces int
		at    time.Duration
		want  int
	}{
		{1, 0, 0},
		{0, 5 * time.Second, 0},
		{0, 12 * time.Second, 1},
	}
	for _, step := range steps {
		ds := m.Observe(step.faces, epoch.Add(step.at))
		fmt.Printf("  t=%-4s faces=%d -> %d detection(s)\n", step.at, step.faces, len(ds))
		if len(ds) != step.want {
			return fmt.Errorf("at %s expected %d detections, got %d", step.at, step.want, len(ds))
		}
		if step.want == 1 && ds[0].Kind != detection.KindStudentAbsent {
			return fmt.Errorf("expected %s, got %s", detection.KindStudentAbsent, ds[0].Kind)
		}
	}
	return nil
}

func scenarioMultipleFaces() error {
	m := newMonitor()
	ds := m.Observe(3, epoch)
	if len(ds) != 1 || ds[0].Kind != detection.KindMultipleFaces {
		return fmt.Errorf("expected one %s detection, got %v", detection.KindMultipleFaces, ds)
	}
	fmt.Printf("  %s confidence=%.2f\n", ds[0].Kind, ds[0].Confidence)
	if ds[0].Confidence != 0.9 {
		return fmt.Errorf("expected confidence 0.9, got %.2f", ds[0].Confidence)
	}
	if more := m.Observe(1, epoch.Add(20*time.Second)); len(more) != 0 {
		return fmt.Errorf("unexpected absence side effect: %v", more)
	}
	return nil
}

func scenarioAlertWithoutEvidence() error {
	m := newMonitor()
	policy := scorer.DefaultPolicy()
	ds := fusion.FromObjects([]capability.DetectedObject{{Class: "cell phone", Confidence: 0.75}}, epoch)
	delta := m.Ingest(ds, policy)
	fmt.Printf("  eligible=%d evidence=%d score+%d\n", len(delta.Eligible), len(delta.EvidenceEligible), delta.ScoreAdded)
	if len(delta.Eligible) != 1 {
		return fmt.Errorf("expected one alert-eligible detection, got %d", len(delta.Eligible))
	}
	if len(delta.EvidenceEligible) != 0 {
		return fmt.Errorf("expected no evidence, got %d", len(delta.EvidenceEligible))
	}
	return nil
}

func scenarioDestroyed() error {
	reg := registry.New(registry.Config{Monitor: monitor.DefaultConfig()}, logger.NewNopLogger())
	reg.Create(monitor.Meta{SessionID: "S"})
	reg.Destroy("S")
	_, err := reg.Get("S")
	fmt.Printf("  get after destroy -> %v\n", err)
	if !errors.Is(err, registry.ErrUnknownSession) {
		return fmt.Errorf("expected %v, got %v", registry.ErrUnknownSession, err)
	}
	return nil
}

func scenarioHistoryBound() error {
	m := newMonitor()
	policy := scorer.DefaultPolicy()
	for i := 0; i < 150; i++ {
		d := detection.New(detection.KindVoiceDetected, 0.6, "replay", epoch.Add(time.Duration(i)*time.Second))
		m.Ingest([]detection.Detection{d}, policy)
	}
	history := m.History()
	rec := m.Summary(policy)
	fmt.Printf("  history=%d total=%d score=%d\n", len(history), rec.TotalDetections, rec.Score)
	if len(history) != monitor.DefaultHistoryCapacity {
		return fmt.Errorf("expected %d retained, got %d", monitor.DefaultHistoryCapacity, len(history))
	}
	if !history[0].Timestamp.Equal(epoch.Add(50 * time.Second)) {
		return fmt.Errorf("oldest retained detection is %s", history[0].Timestamp)
	}
	if rec.TotalDetections != 150 || rec.Score != 150*policy.Weight(detection.KindVoiceDetected) {
		return fmt.Errorf("counters lost evictions: total=%d score=%d", rec.TotalDetections, rec.Score)
	}
	return nil
}
