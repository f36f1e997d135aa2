package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"proctor-recorder/dto"
)

// API is the server surface the recorder and upload queue talk to.
type API interface {
	StartSession(ctx context.Context, includeScreen bool) (*dto.StartSessionResponse, error)
	SignChunk(ctx context.Context, req dto.SignChunkRequest) (*dto.SignChunkResponse, error)
	CompleteChunk(ctx context.Context, chunkID uuid.UUID, checksum string, byteSize int64) error
	Finalize(ctx context.Context, req dto.FinalizeRequest) (*dto.FinalizeResponse, error)
	Abort(ctx context.Context, reason string) (*dto.AbortSessionResponse, error)
	UploadChunk(ctx context.Context, uploadURL, mimeType, checksum string, data []byte) error
}

type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type httpAPI struct {
	baseURL   string
	sessionID string
	ownerID   string
	client    *http.Client
}

func NewAPI(baseURL, sessionID, ownerID string) API {
	return &httpAPI{
		baseURL:   baseURL,
		sessionID: sessionID,
		ownerID:   ownerID,
		client:    http.DefaultClient,
	}
}

func (a *httpAPI) StartSession(ctx context.Context, includeScreen bool) (*dto.StartSessionResponse, error) {
	out := &dto.StartSessionResponse{}
	err := a.post(ctx, fmt.Sprintf("/api/exam-sessions/%s/start", a.sessionID), dto.StartSessionRequest{IncludeScreen: includeScreen}, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) SignChunk(ctx context.Context, req dto.SignChunkRequest) (*dto.SignChunkResponse, error) {
	out := &dto.SignChunkResponse{}
	err := a.post(ctx, fmt.Sprintf("/api/exam-sessions/%s/chunks/sign", a.sessionID), req, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) CompleteChunk(ctx context.Context, chunkID uuid.UUID, checksum string, byteSize int64) error {
	return a.post(ctx, fmt.Sprintf("/api/exam-sessions/%s/chunks/%s/complete", a.sessionID, chunkID), dto.CompleteChunkRequest{
		Checksum: checksum,
		ByteSize: byteSize,
	}, nil)
}

func (a *httpAPI) Finalize(ctx context.Context, req dto.FinalizeRequest) (*dto.FinalizeResponse, error) {
	out := &dto.FinalizeResponse{}
	err := a.post(ctx, fmt.Sprintf("/api/exam-sessions/%s/finalize", a.sessionID), req, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *httpAPI) Abort(ctx context.Context, reason string) (*dto.AbortSessionResponse, error) {
	out := &dto.AbortSessionResponse{}
	err := a.post(ctx, fmt.Sprintf("/api/exam-sessions/%s/abort", a.sessionID), dto.AbortSessionRequest{Reason: reason}, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UploadChunk performs the transfer against a presigned target.
func (a *httpAPI) UploadChunk(ctx context.Context, uploadURL, mimeType, checksum string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("x-amz-checksum-sha256", checksum)
	req.ContentLength = int64(len(data))

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: string(body)}
	}
	return nil
}

func (a *httpAPI) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-Id", a.ownerID)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
