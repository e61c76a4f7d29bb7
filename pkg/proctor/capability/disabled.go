package capability

import "context"

// Disabled produces no detections. Used when a capability is switched off.
type Disabled struct{}

var (
	_ FaceDetector   = Disabled{}
	_ ObjectDetector = Disabled{}
	_ AudioAnalyzer  = Disabled{}
)

func (Disabled) DetectFaces(context.Context, Frame) ([]FaceBox, error) {
	return nil, nil
}

func (Disabled) DetectObjects(context.Context, Frame) ([]DetectedObject, error) {
	return nil, nil
}

func (Disabled) AnalyzeAudio(context.Context, AudioClip) (AudioAnalysis, error) {
	return AudioAnalysis{}, nil
}
