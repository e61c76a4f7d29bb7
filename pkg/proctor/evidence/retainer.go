// Package evidence keeps a durable copy of the latest frame when a
// high-confidence detection fires.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"exam-proctor-be/pkg/proctor/detection"
	"exam-proctor-be/pkg/proctor/monitor"

	"github.com/google/uuid"
)

var ErrEvidencePersist = errors.New("evidence persist failed")

const timestampLayout = "20060102_150405"

// Reference points at a stored evidence artifact.
type Reference struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Kind      detection.Kind `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Path      string         `json:"path"`
}

// ArtifactStore writes one artifact and returns where it landed.
type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// FrameSource is satisfied by *monitor.Monitor.
type FrameSource interface {
	LatestFrame() (monitor.Frame, bool)
}

type Retainer struct {
	store  ArtifactStore
	suffix func() string
}

func NewRetainer(store ArtifactStore) *Retainer {
	return &Retainer{
		store: store,
		suffix: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		},
	}
}

// Capture stores the latest buffered frame of src for d. It returns (nil, nil)
// when there is no frame: evidence is best effort.
func (r *Retainer) Capture(ctx context.Context, src FrameSource, sessionID string, d detection.Detection) (*Reference, error) {
	frame, ok := src.LatestFrame()
	if !ok || len(frame.Data) == 0 {
		return nil, nil
	}

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = d.Timestamp
	}
	ts = ts.Truncate(time.Second)

	id := fmt.Sprintf("%s_%s_%s_%s", sanitize(sessionID), sanitize(string(d.Kind)), ts.UTC().Format(timestampLayout), r.suffix())

	path, err := r.store.Save(ctx, id+".jpg", frame.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEvidencePersist, id, err)
	}

	return &Reference{
		ID:        id,
		SessionID: sessionID,
		Kind:      d.Kind,
		Timestamp: ts,
		Path:      path,
	}, nil
}

// sanitize keeps ids safe to use as file names.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
