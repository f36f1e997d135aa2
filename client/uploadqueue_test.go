package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor-recorder/constant"
	"proctor-recorder/dto"
)

// fakeAPI is a scriptable server double. Error hooks are consulted per
// call; nil hooks mean success.
type fakeAPI struct {
	mu        sync.Mutex
	inFlight  int
	maxFlight int
	signCalls int

	signErr   func(call int) error
	uploadErr func(call int) error

	started   *dto.StartSessionResponse
	finalized *dto.FinalizeRequest
	aborted   bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		started: &dto.StartSessionResponse{
			Recording: dto.RecordingSettings{ChunkDurationMs: 10_000, MaxRetries: 3},
		},
	}
}

func (a *fakeAPI) StartSession(_ context.Context, _ bool) (*dto.StartSessionResponse, error) {
	return a.started, nil
}

func (a *fakeAPI) SignChunk(_ context.Context, req dto.SignChunkRequest) (*dto.SignChunkResponse, error) {
	a.mu.Lock()
	a.signCalls++
	call := a.signCalls
	a.inFlight++
	if a.inFlight > a.maxFlight {
		a.maxFlight = a.inFlight
	}
	hook := a.signErr
	a.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			a.done()
			return nil, err
		}
	}
	return &dto.SignChunkResponse{
		ChunkID:    uuid.New(),
		UploadURL:  "https://fake-storage/upload",
		StorageKey: fmt.Sprintf("examSessions/s1/%s/chunk-%d.webm", req.StreamType, *req.ChunkIndex),
		ExpiresAt:  time.Now().Add(15 * time.Minute),
	}, nil
}

func (a *fakeAPI) UploadChunk(_ context.Context, _, _, _ string, _ []byte) error {
	a.mu.Lock()
	call := a.signCalls
	hook := a.uploadErr
	a.mu.Unlock()
	if hook != nil {
		if err := hook(call); err != nil {
			a.done()
			return err
		}
	}
	return nil
}

func (a *fakeAPI) CompleteChunk(_ context.Context, _ uuid.UUID, _ string, _ int64) error {
	a.done()
	return nil
}

func (a *fakeAPI) Finalize(_ context.Context, req dto.FinalizeRequest) (*dto.FinalizeResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = &req
	return &dto.FinalizeResponse{Manifest: &dto.RecordingManifest{SessionID: "s1"}}, nil
}

func (a *fakeAPI) Abort(_ context.Context, _ string) (*dto.AbortSessionResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aborted = true
	return &dto.AbortSessionResponse{OK: true}, nil
}

func (a *fakeAPI) done() {
	a.mu.Lock()
	a.inFlight--
	a.mu.Unlock()
}

func (a *fakeAPI) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signCalls
}

func (a *fakeAPI) maxConcurrent() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxFlight
}

// fakeNetwork flips between online and offline under test control.
type fakeNetwork struct {
	mu     sync.Mutex
	online bool
	signal chan struct{}
}

func newFakeNetwork(online bool) *fakeNetwork {
	return &fakeNetwork{online: online, signal: make(chan struct{}, 1)}
}

func (n *fakeNetwork) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

func (n *fakeNetwork) OnlineSignal() <-chan struct{} {
	return n.signal
}

func (n *fakeNetwork) setOnline(online bool) {
	n.mu.Lock()
	wasOffline := !n.online
	n.online = online
	n.mu.Unlock()
	if online && wasOffline {
		n.signal <- struct{}{}
	}
}

type resultRecorder struct {
	mu      sync.Mutex
	results []ChunkUploadResult
}

func (r *resultRecorder) record(result ChunkUploadResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *resultRecorder) indices() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, res.ChunkIndex)
	}
	return out
}

func testChunk(index int) *PendingChunk {
	return &PendingChunk{
		ID:         uuid.NewString(),
		StreamType: constant.StreamTypeWebcam,
		ChunkIndex: index,
		DurationMs: 10_000,
		Data:       []byte(fmt.Sprintf("chunk-%d-payload", index)),
	}
}

func newTestQueue(ctx context.Context, api API, net NetworkStatus, store *OfflineChunkStore, rec *resultRecorder) *UploadQueue {
	return NewUploadQueue(ctx, UploadQueueOptions{
		SessionID:       "s1",
		API:             api,
		MimeType:        "video/webm",
		MaxRetries:      3,
		OfflineStore:    store,
		NetStatus:       net,
		RetryInterval:   time.Millisecond,
		OnChunkUploaded: rec.record,
	})
}

func TestQueueUploadsStrictlyInOrder(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	rec := &resultRecorder{}
	store := OpenOfflineChunkStore(filepath.Join(t.TempDir(), "chunks.db"))

	q := newTestQueue(ctx, api, newFakeNetwork(true), store, rec)
	for i := 0; i < 5; i++ {
		q.Enqueue(ctx, testChunk(i))
	}
	require.NoError(t, q.WaitForIdle(ctx))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, rec.indices())
	assert.Equal(t, 1, api.maxConcurrent())
}

func TestQueueRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.signErr = func(call int) error {
		if call <= 2 {
			return &APIError{Status: http.StatusInternalServerError, Message: "try again"}
		}
		return nil
	}
	rec := &resultRecorder{}
	store := OpenOfflineChunkStore(filepath.Join(t.TempDir(), "chunks.db"))

	q := newTestQueue(ctx, api, newFakeNetwork(true), store, rec)
	q.Enqueue(ctx, testChunk(0))
	require.NoError(t, q.WaitForIdle(ctx))

	assert.Equal(t, 3, api.calls())
	assert.Equal(t, []int{0}, rec.indices())
}

func TestQueueHaltsWhenRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.signErr = func(int) error {
		return &APIError{Status: http.StatusInternalServerError, Message: "broken"}
	}
	rec := &resultRecorder{}
	store := OpenOfflineChunkStore(filepath.Join(t.TempDir(), "chunks.db"))

	q := newTestQueue(ctx, api, newFakeNetwork(true), store, rec)
	q.Enqueue(ctx, testChunk(0))

	err := q.WaitForIdle(ctx)
	require.Error(t, err)
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 3, api.calls())
	assert.Empty(t, rec.indices())

	// The halt sticks.
	assert.Error(t, q.WaitForIdle(ctx))
}

func TestQueueDoesNotRetryPermanentRejections(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	api.signErr = func(int) error {
		return &APIError{Status: http.StatusConflict, Message: "duplicate index"}
	}
	store := OpenOfflineChunkStore(filepath.Join(t.TempDir(), "chunks.db"))

	q := newTestQueue(ctx, api, newFakeNetwork(true), store, &resultRecorder{})
	q.Enqueue(ctx, testChunk(0))

	require.Error(t, q.WaitForIdle(ctx))
	assert.Equal(t, 1, api.calls())
}

func TestQueueStagesOfflineAndReplaysOnReconnect(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork(false)
	api := newFakeAPI()
	api.signErr = func(int) error {
		if !net.Online() {
			return errors.New("dial tcp: network is unreachable")
		}
		return nil
	}
	rec := &resultRecorder{}
	store := OpenOfflineChunkStore(filepath.Join(t.TempDir(), "chunks.db"))
	require.True(t, store.Available())

	q := newTestQueue(ctx, api, net, store, rec)
	for i := 0; i < 3; i++ {
		q.Enqueue(ctx, testChunk(i))
	}

	// Staged chunks count as durably handled, so the queue goes idle
	// without an error while offline.
	require.NoError(t, q.WaitForIdle(ctx))
	assert.Empty(t, rec.indices())

	staged, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, staged, 3)

	net.setOnline(true)

	require.Eventually(t, func() bool {
		return len(rec.indices()) == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{0, 1, 2}, rec.indices())

	require.Eventually(t, func() bool {
		remaining, err := store.ReadAll(ctx)
		return err == nil && len(remaining) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestQueueStagesChunksEnqueuedWhilePaused(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork(false)
	api := newFakeAPI()
	api.signErr = func(int) error {
		if !net.Online() {
			return errors.New("dial tcp: network is unreachable")
		}
		return nil
	}
	rec := &resultRecorder{}
	store := OpenOfflineChunkStore(filepath.Join(t.TempDir(), "chunks.db"))

	q := newTestQueue(ctx, api, net, store, rec)
	q.Enqueue(ctx, testChunk(0))
	require.NoError(t, q.WaitForIdle(ctx))

	// Capture keeps producing while the queue sits paused offline.
	q.Enqueue(ctx, testChunk(1))
	q.Enqueue(ctx, testChunk(2))
	require.NoError(t, q.WaitForIdle(ctx))

	staged, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, staged, 3)

	net.setOnline(true)
	require.Eventually(t, func() bool {
		return len(rec.indices()) == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{0, 1, 2}, rec.indices())
}
