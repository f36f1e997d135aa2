package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"proctor-recorder/constant"
	"proctor-recorder/dto"
)

const (
	defaultChunkDuration = 10 * time.Second
	defaultMaxRetries    = 5
	defaultMimeType      = "video/webm"
)

type RecorderConfig struct {
	SessionID     string
	API           API
	IncludeScreen bool

	// Zero values are filled from the server's recommended settings
	// returned by the start call.
	ChunkDuration time.Duration
	MaxRetries    int
	MimeType      string

	Webcam CaptureSource
	Screen CaptureSource

	OfflineStore *OfflineChunkStore
	NetStatus    NetworkStatus

	RetryInterval time.Duration

	OnStatusChange     func(Status)
	OnChunkUploaded    func(ChunkUploadResult)
	OnError            func(error)
	OnScreenShareEnded func()
}

// Recorder drives a capture session: it opens the capture sources, feeds
// their chunks through the upload queue and finalizes or aborts the
// session on the server.
type Recorder struct {
	cfg RecorderConfig

	mu          sync.Mutex
	status      Status
	indices     map[constant.StreamType]int
	uploaded    []ChunkUploadResult
	streamStart map[constant.StreamType]time.Time
	sources     map[constant.StreamType]CaptureSource

	queue        *UploadQueue
	pumps        sync.WaitGroup
	sessionStart time.Time
}

func NewRecorder(cfg RecorderConfig) *Recorder {
	if cfg.MimeType == "" {
		cfg.MimeType = defaultMimeType
	}
	if cfg.NetStatus == nil {
		cfg.NetStatus = AlwaysOnline{}
	}
	return &Recorder{
		cfg:         cfg,
		status:      StatusIdle,
		indices:     make(map[constant.StreamType]int),
		streamStart: make(map[constant.StreamType]time.Time),
		sources:     make(map[constant.StreamType]CaptureSource),
	}
}

func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Recorder) setStatus(status Status) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
	if r.cfg.OnStatusChange != nil {
		r.cfg.OnStatusChange(status)
	}
}

func (r *Recorder) nextIndex(streamType constant.StreamType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	index := r.indices[streamType]
	r.indices[streamType] = index + 1
	return index
}

// Start opens the capture sources, announces the session to the server and
// begins segmented recording. Device acquisition failures surface before
// the recorder ever reaches active.
func (r *Recorder) Start(ctx context.Context) error {
	if status := r.Status(); status != StatusIdle && status != StatusStopped {
		return fmt.Errorf("cannot start recorder from status %s", status)
	}
	if r.cfg.Webcam == nil {
		return fmt.Errorf("no webcam capture source configured")
	}
	if r.cfg.IncludeScreen && r.cfg.Screen == nil {
		return fmt.Errorf("no screen capture source configured")
	}

	r.setStatus(StatusInitialising)

	resp, err := r.cfg.API.StartSession(ctx, r.cfg.IncludeScreen)
	if err != nil {
		r.fail(err)
		return err
	}
	if r.cfg.ChunkDuration <= 0 {
		r.cfg.ChunkDuration = time.Duration(resp.Recording.ChunkDurationMs) * time.Millisecond
		if r.cfg.ChunkDuration <= 0 {
			r.cfg.ChunkDuration = defaultChunkDuration
		}
	}
	if r.cfg.MaxRetries <= 0 {
		r.cfg.MaxRetries = resp.Recording.MaxRetries
		if r.cfg.MaxRetries <= 0 {
			r.cfg.MaxRetries = defaultMaxRetries
		}
	}

	r.queue = NewUploadQueue(ctx, UploadQueueOptions{
		SessionID:     r.cfg.SessionID,
		API:           r.cfg.API,
		MimeType:      r.cfg.MimeType,
		MaxRetries:    r.cfg.MaxRetries,
		OfflineStore:  r.cfg.OfflineStore,
		NetStatus:     r.cfg.NetStatus,
		RetryInterval: r.cfg.RetryInterval,
		OnChunkUploaded: func(result ChunkUploadResult) {
			r.mu.Lock()
			r.uploaded = append(r.uploaded, result)
			r.mu.Unlock()
			if r.cfg.OnChunkUploaded != nil {
				r.cfg.OnChunkUploaded(result)
			}
		},
		OnError: r.cfg.OnError,
	})

	if err := r.startSource(ctx, constant.StreamTypeWebcam, r.cfg.Webcam); err != nil {
		r.fail(err)
		return err
	}

	if r.cfg.IncludeScreen {
		screen := NewScreenSource(r.cfg.Screen, r.cfg.OnScreenShareEnded)
		if err := r.startSource(ctx, constant.StreamTypeScreen, screen); err != nil {
			r.stopSources()
			r.fail(err)
			return err
		}
	}

	r.mu.Lock()
	r.sessionStart = time.Now()
	r.mu.Unlock()
	r.setStatus(StatusActive)
	return nil
}

func (r *Recorder) startSource(ctx context.Context, streamType constant.StreamType, source CaptureSource) error {
	chunks, err := source.Start(ctx, r.cfg.ChunkDuration)
	if err != nil {
		return fmt.Errorf("acquiring %s stream: %w", streamType, err)
	}

	r.mu.Lock()
	r.sources[streamType] = source
	r.streamStart[streamType] = time.Now()
	r.mu.Unlock()

	r.pumps.Add(1)
	go r.pump(ctx, streamType, chunks)
	return nil
}

func (r *Recorder) pump(ctx context.Context, streamType constant.StreamType, chunks <-chan CapturedChunk) {
	defer r.pumps.Done()
	for chunk := range chunks {
		if len(chunk.Data) == 0 {
			continue
		}
		r.queue.Enqueue(ctx, &PendingChunk{
			ID:         uuid.NewString(),
			StreamType: streamType,
			ChunkIndex: r.nextIndex(streamType),
			DurationMs: chunk.DurationMs,
			Data:       chunk.Data,
		})
	}
}

// Pause suspends the device recorders only; the upload queue keeps
// draining.
func (r *Recorder) Pause() {
	if r.Status() != StatusActive {
		return
	}
	r.eachSource(func(s CaptureSource) { s.Pause() })
	r.setStatus(StatusPaused)
}

func (r *Recorder) Resume() {
	if r.Status() != StatusPaused {
		return
	}
	r.eachSource(func(s CaptureSource) { s.Resume() })
	r.setStatus(StatusActive)
}

// Stop ends capture, waits for the queue to quiesce and finalizes the
// session with the confirmed chunk references.
func (r *Recorder) Stop(ctx context.Context) error {
	if status := r.Status(); status != StatusActive && status != StatusPaused {
		return nil
	}

	r.stopSources()
	r.pumps.Wait()

	if err := r.queue.WaitForIdle(ctx); err != nil {
		r.fail(err)
		return err
	}

	if err := r.finalize(ctx); err != nil {
		r.fail(err)
		return err
	}

	if err := r.cfg.OfflineStore.Clear(ctx); err != nil {
		return err
	}

	r.setStatus(StatusStopped)
	return nil
}

// Abort tears everything down, waits for the queue to quiesce so no chunk
// registration races the storage cleanup, then asks the server to delete
// the session's objects.
func (r *Recorder) Abort(ctx context.Context, reason string) error {
	r.stopSources()
	r.pumps.Wait()

	if r.queue != nil {
		// A halted queue is fine here; the session is being thrown away.
		_ = r.queue.WaitForIdle(ctx)
	}

	var abortErr error
	if _, err := r.cfg.API.Abort(ctx, reason); err != nil {
		abortErr = err
	}

	if err := r.cfg.OfflineStore.Clear(ctx); err != nil && abortErr == nil {
		abortErr = err
	}

	r.setStatus(StatusFailed)
	return abortErr
}

func (r *Recorder) finalize(ctx context.Context) error {
	r.mu.Lock()
	uploaded := make([]ChunkUploadResult, len(r.uploaded))
	copy(uploaded, r.uploaded)
	streamStart := make(map[constant.StreamType]time.Time, len(r.streamStart))
	for k, v := range r.streamStart {
		streamStart[k] = v
	}
	sessionStart := r.sessionStart
	r.mu.Unlock()

	if len(uploaded) == 0 {
		return fmt.Errorf("no confirmed chunks to finalize")
	}

	byStream := make(map[constant.StreamType][]ChunkUploadResult)
	for _, chunk := range uploaded {
		byStream[chunk.StreamType] = append(byStream[chunk.StreamType], chunk)
	}

	streams := make([]dto.FinalizeStream, 0, len(byStream))
	for streamType, results := range byStream {
		start, ok := streamStart[streamType]
		if !ok {
			start = sessionStart
		}
		refs := make([]dto.FinalizeChunkRef, 0, len(results))
		for _, result := range results {
			chunkID, err := uuid.Parse(result.ChunkID)
			if err != nil {
				return err
			}
			refs = append(refs, dto.FinalizeChunkRef{
				ChunkID:    chunkID,
				ChunkIndex: result.ChunkIndex,
			})
		}
		streams = append(streams, dto.FinalizeStream{
			StreamType: streamType,
			DurationMs: time.Since(start).Milliseconds(),
			Chunks:     refs,
		})
	}

	_, err := r.cfg.API.Finalize(ctx, dto.FinalizeRequest{
		TotalDurationMs: time.Since(sessionStart).Milliseconds(),
		Streams:         streams,
	})
	return err
}

func (r *Recorder) stopSources() {
	r.eachSource(func(s CaptureSource) { s.Stop() })
}

func (r *Recorder) eachSource(fn func(CaptureSource)) {
	r.mu.Lock()
	sources := make([]CaptureSource, 0, len(r.sources))
	for _, s := range r.sources {
		sources = append(sources, s)
	}
	r.mu.Unlock()
	for _, s := range sources {
		fn(s)
	}
}

func (r *Recorder) fail(err error) {
	if r.cfg.OnError != nil {
		r.cfg.OnError(err)
	}
	r.setStatus(StatusFailed)
}
