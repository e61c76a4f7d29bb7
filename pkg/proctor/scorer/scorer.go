// Package scorer turns detection history into a suspicion assessment.
//
// The score is count-weighted: every recorded detection contributes the weight
// of its kind regardless of confidence. Confidence only gates which detections
// may raise alerts or capture evidence.
package scorer

import (
	"errors"
	"fmt"
	"sort"

	"exam-proctor-be/pkg/proctor/detection"
)

const (
	DefaultAlertThreshold    = 0.7
	DefaultEvidenceThreshold = 0.8
	DefaultUnknownWeight     = 1
)

var ErrInvalidPolicy = errors.New("invalid scoring policy")

// DefaultWeights is the reference severity table.
func DefaultWeights() map[detection.Kind]int {
	return map[detection.Kind]int{
		detection.KindMultipleFaces:        10,
		detection.KindPhoneDetected:        8,
		detection.KindUnauthorizedMaterial: 7,
		detection.KindStudentAbsent:        5,
		detection.KindVoiceDetected:        4,
		detection.KindAudioAnomaly:         3,
		detection.KindSuspiciousGaze:       2,
	}
}

type Policy struct {
	Weights           map[detection.Kind]int
	DefaultWeight     int
	AlertThreshold    float64
	EvidenceThreshold float64
}

func DefaultPolicy() Policy {
	return Policy{
		Weights:           DefaultWeights(),
		DefaultWeight:     DefaultUnknownWeight,
		AlertThreshold:    DefaultAlertThreshold,
		EvidenceThreshold: DefaultEvidenceThreshold,
	}
}

func (p Policy) Validate() error {
	if p.AlertThreshold < 0 || p.AlertThreshold > 1 {
		return fmt.Errorf("%w: alert threshold %.2f outside [0,1]", ErrInvalidPolicy, p.AlertThreshold)
	}
	if p.EvidenceThreshold < 0 || p.EvidenceThreshold > 1 {
		return fmt.Errorf("%w: evidence threshold %.2f outside [0,1]", ErrInvalidPolicy, p.EvidenceThreshold)
	}
	if p.EvidenceThreshold < p.AlertThreshold {
		return fmt.Errorf("%w: evidence threshold %.2f is looser than alert threshold %.2f", ErrInvalidPolicy, p.EvidenceThreshold, p.AlertThreshold)
	}
	for kind, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("%w: negative weight for %s", ErrInvalidPolicy, kind)
		}
	}
	return nil
}

func (p Policy) Weight(kind detection.Kind) int {
	if w, ok := p.Weights[kind]; ok {
		return w
	}
	return p.DefaultWeight
}

// AlertEligible reports whether d may notify the student and supervisors.
func (p Policy) AlertEligible(d detection.Detection) bool {
	return d.Confidence > p.AlertThreshold
}

// EvidenceEligible is only ever true for alert-eligible detections.
func (p Policy) EvidenceEligible(d detection.Detection) bool {
	return p.AlertEligible(d) && d.Confidence > p.EvidenceThreshold
}

// Score sums weight(kind) over the per-kind counts.
func (p Policy) Score(counts map[detection.Kind]int) int {
	total := 0
	for kind, n := range counts {
		total += n * p.Weight(kind)
	}
	return total
}

// SuspicionRecord is derived on demand and never stored.
type SuspicionRecord struct {
	Counts               map[detection.Kind]int `json:"activity_counts"`
	Score                int                    `json:"suspicion_score"`
	TotalDetections      int                    `json:"total_detections"`
	Observations         int                    `json:"total_frames"`
	HighConfidenceAlerts []detection.Detection  `json:"high_confidence_alerts"`
}

// Summarize is a pure function of its inputs. counts covers every detection
// ever recorded; history is the bounded window used for the alert list.
func Summarize(counts map[detection.Kind]int, history []detection.Detection, observations int, p Policy) SuspicionRecord {
	rec := SuspicionRecord{
		Counts:               make(map[detection.Kind]int, len(counts)),
		Observations:         observations,
		HighConfidenceAlerts: []detection.Detection{},
	}
	for kind, n := range counts {
		rec.Counts[kind] = n
		rec.TotalDetections += n
	}
	rec.Score = p.Score(rec.Counts)

	for _, d := range history {
		if p.AlertEligible(d) {
			rec.HighConfidenceAlerts = append(rec.HighConfidenceAlerts, d)
		}
	}
	return rec
}

// CountKinds tallies a detection slice; used when replaying a raw history.
func CountKinds(history []detection.Detection) map[detection.Kind]int {
	counts := make(map[detection.Kind]int)
	for _, d := range history {
		counts[d.Kind]++
	}
	return counts
}

// RankedKinds orders kinds by their contribution to the score, heaviest first.
func RankedKinds(rec SuspicionRecord, p Policy) []detection.Kind {
	kinds := make([]detection.Kind, 0, len(rec.Counts))
	for k := range rec.Counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		ci := rec.Counts[kinds[i]] * p.Weight(kinds[i])
		cj := rec.Counts[kinds[j]] * p.Weight(kinds[j])
		if ci != cj {
			return ci > cj
		}
		return kinds[i] < kinds[j]
	})
	return kinds
}
