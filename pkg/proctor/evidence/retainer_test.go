package evidence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"exam-proctor-be/pkg/proctor/detection"
	"exam-proctor-be/pkg/proctor/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	frame monitor.Frame
	ok    bool
}

func (s stubSource) LatestFrame() (monitor.Frame, bool) { return s.frame, s.ok }

type failingStore struct{}

func (failingStore) Save(context.Context, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

var frameTime = time.Date(2026, 3, 1, 9, 15, 42, 730_000_000, time.UTC)

func TestCapture_NoFrameReturnsNothing(t *testing.T) {
	r := NewRetainer(NewDiskStore(t.TempDir()))
	d := detection.New(detection.KindPhoneDetected, 0.95, "", frameTime)

	ref, err := r.Capture(context.Background(), stubSource{}, "s-1", d)
	assert.NoError(t, err)
	assert.Nil(t, ref)
}

func TestCapture_WritesLatestFrame(t *testing.T) {
	dir := t.TempDir()
	r := NewRetainer(NewDiskStore(dir))
	d := detection.New(detection.KindPhoneDetected, 0.95, "", frameTime.Add(time.Second))

	src := stubSource{frame: monitor.Frame{Data: []byte("jpeg-bytes"), Timestamp: frameTime}, ok: true}
	ref, err := r.Capture(context.Background(), src, "s-1", d)
	require.NoError(t, err)
	require.NotNil(t, ref)

	assert.Regexp(t, regexp.MustCompile(`^s-1_phone-detected_20260301_091542_[0-9a-f]{8}$`), ref.ID)
	assert.Equal(t, detection.KindPhoneDetected, ref.Kind)
	assert.Equal(t, frameTime.Truncate(time.Second), ref.Timestamp)
	assert.Equal(t, filepath.Join(dir, ref.ID+".jpg"), ref.Path)

	data, err := os.ReadFile(ref.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
}

func TestCapture_IDsDoNotCollide(t *testing.T) {
	r := NewRetainer(NewDiskStore(t.TempDir()))
	d := detection.New(detection.KindMultipleFaces, 0.9, "", frameTime)
	src := stubSource{frame: monitor.Frame{Data: []byte("x"), Timestamp: frameTime}, ok: true}

	a, err := r.Capture(context.Background(), src, "s-1", d)
	require.NoError(t, err)
	b, err := r.Capture(context.Background(), src, "s-1", d)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCapture_StoreFailureIsReported(t *testing.T) {
	r := NewRetainer(failingStore{})
	d := detection.New(detection.KindPhoneDetected, 0.95, "", frameTime)
	src := stubSource{frame: monitor.Frame{Data: []byte("x"), Timestamp: frameTime}, ok: true}

	ref, err := r.Capture(context.Background(), src, "s-1", d)
	assert.Nil(t, ref)
	assert.ErrorIs(t, err, ErrEvidencePersist)
}

func TestCapture_UsesMonitorFrames(t *testing.T) {
	m := monitor.New(monitor.Meta{SessionID: "s/../2"}, monitor.DefaultConfig(), frameTime)
	m.BufferFrame([]byte("old"), frameTime)
	m.BufferFrame([]byte("new"), frameTime.Add(2*time.Second))

	r := NewRetainer(NewDiskStore(t.TempDir()))
	ref, err := r.Capture(context.Background(), m, "s/../2", detection.New(detection.KindPhoneDetected, 0.9, "", frameTime))
	require.NoError(t, err)
	require.NotNil(t, ref)

	assert.Contains(t, ref.ID, "s----2_phone-detected_20260301_091544_")
	data, err := os.ReadFile(ref.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

func TestDiskStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDiskStore(t.TempDir()).Save(ctx, "a.jpg", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
