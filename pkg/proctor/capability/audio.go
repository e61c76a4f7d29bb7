package capability

import (
	"context"
	"math"

	"exam-proctor-be/pkg/proctor/detection"
)

const (
	DefaultVoiceLevel      = 50
	DefaultAnomalyLevel    = 85
	DefaultEnergyThreshold = 0.02
	DefaultZCRThreshold    = 0.1
)

// LevelAnalyzer judges a clip by the client-reported loudness alone.
type LevelAnalyzer struct {
	VoiceLevel   float64
	AnomalyLevel float64
}

var _ AudioAnalyzer = LevelAnalyzer{}

func NewLevelAnalyzer(voiceLevel, anomalyLevel float64) LevelAnalyzer {
	if voiceLevel <= 0 {
		voiceLevel = DefaultVoiceLevel
	}
	if anomalyLevel <= voiceLevel {
		anomalyLevel = DefaultAnomalyLevel
	}
	return LevelAnalyzer{VoiceLevel: voiceLevel, AnomalyLevel: anomalyLevel}
}

func (a LevelAnalyzer) AnalyzeAudio(_ context.Context, clip AudioClip) (AudioAnalysis, error) {
	if clip.Level == nil {
		return AudioAnalysis{}, nil
	}
	level := *clip.Level

	res := AudioAnalysis{IsVoice: level > a.VoiceLevel}
	if level > a.AnomalyLevel {
		span := 100 - a.AnomalyLevel
		if span <= 0 {
			span = 1
		}
		res.IsAnomaly = true
		res.AnomalyConfidence = detection.ClampConfidence(0.5 + 0.5*(level-a.AnomalyLevel)/span)
	}
	return res, nil
}

// EnergyAnalyzer runs a short-term energy / zero-crossing voice check over
// raw samples and flags heavy clipping as an anomaly. Clips without samples
// fall back to the level heuristic.
type EnergyAnalyzer struct {
	EnergyThreshold float64
	ZCRThreshold    float64
	Fallback        LevelAnalyzer
}

var _ AudioAnalyzer = EnergyAnalyzer{}

func NewEnergyAnalyzer(fallback LevelAnalyzer) EnergyAnalyzer {
	return EnergyAnalyzer{
		EnergyThreshold: DefaultEnergyThreshold,
		ZCRThreshold:    DefaultZCRThreshold,
		Fallback:        fallback,
	}
}

func (a EnergyAnalyzer) AnalyzeAudio(ctx context.Context, clip AudioClip) (AudioAnalysis, error) {
	if len(clip.Samples) == 0 {
		return a.Fallback.AnalyzeAudio(ctx, clip)
	}

	rms, zcr, clipped := sampleStats(clip.Samples)
	res := AudioAnalysis{
		IsVoice: rms > a.EnergyThreshold && zcr > a.ZCRThreshold,
	}
	if clipped > 0.05 {
		res.IsAnomaly = true
		res.AnomalyConfidence = detection.ClampConfidence(0.6 + clipped)
	}
	return res, nil
}

// sampleStats returns RMS energy, zero-crossing rate and the share of
// samples at full scale.
func sampleStats(samples []float32) (rms, zcr, clipped float64) {
	var sumSq float64
	crossings, full := 0, 0
	for i, s := range samples {
		v := float64(s)
		sumSq += v * v
		if math.Abs(v) >= 0.99 {
			full++
		}
		if i > 0 && (samples[i-1] >= 0) != (s >= 0) {
			crossings++
		}
	}
	n := float64(len(samples))
	rms = math.Sqrt(sumSq / n)
	if len(samples) > 1 {
		zcr = float64(crossings) / (n - 1)
	}
	clipped = float64(full) / n
	return rms, zcr, clipped
}
