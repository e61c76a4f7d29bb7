package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteClient talks to an HTTP inference service that hosts the face,
// object and audio models.
type RemoteClient struct {
	BaseURL string
	Client  *http.Client
}

var (
	_ FaceDetector   = &RemoteClient{}
	_ ObjectDetector = &RemoteClient{}
	_ AudioAnalyzer  = &RemoteClient{}
)

func NewRemoteClient(baseURL string, timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteClient{
		BaseURL: baseURL,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// --- Request/Response structs (Internal to this package) ---

type imageRequest struct {
	Image []byte `json:"image"` // base64 on the wire
}

type facesResponse struct {
	Faces []FaceBox `json:"faces"`
}

type objectsResponse struct {
	Objects []DetectedObject `json:"objects"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Interface Implementation ---

func (c *RemoteClient) DetectFaces(ctx context.Context, frame Frame) ([]FaceBox, error) {
	var resp facesResponse
	if err := c.post(ctx, "/v1/faces", imageRequest{Image: frame.Data}, &resp); err != nil {
		return nil, err
	}
	return resp.Faces, nil
}

func (c *RemoteClient) DetectObjects(ctx context.Context, frame Frame) ([]DetectedObject, error) {
	var resp objectsResponse
	if err := c.post(ctx, "/v1/objects", imageRequest{Image: frame.Data}, &resp); err != nil {
		return nil, err
	}
	return resp.Objects, nil
}

func (c *RemoteClient) AnalyzeAudio(ctx context.Context, clip AudioClip) (AudioAnalysis, error) {
	var resp AudioAnalysis
	if err := c.post(ctx, "/v1/audio", clip, &resp); err != nil {
		return AudioAnalysis{}, err
	}
	return resp, nil
}

func (c *RemoteClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrCapabilityUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrCapabilityUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCapabilityUnavailable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrCapabilityUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%w: %s returned %d: %s", ErrCapabilityUnavailable, path, resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("%w: %s returned %d", ErrCapabilityUnavailable, path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrCapabilityUnavailable, err)
	}
	return nil
}
