package client

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"proctor-recorder/dto"
)

type UploadQueueOptions struct {
	SessionID    string
	API          API
	MimeType     string
	MaxRetries   int
	OfflineStore *OfflineChunkStore
	NetStatus    NetworkStatus

	// RetryInterval seeds the exponential backoff between transient
	// attempts. Tests shrink it; zero means one second.
	RetryInterval time.Duration

	OnChunkUploaded func(ChunkUploadResult)
	OnError         func(error)
}

// UploadQueue drains captured chunks strictly one at a time: checksum,
// sign, transfer, confirm. Offline failures are staged durably and
// replayed when connectivity returns; transient failures are retried with
// backoff until the attempt budget runs out, which halts the queue.
type UploadQueue struct {
	opts UploadQueueOptions

	mu         sync.Mutex
	queue      []*PendingChunk
	processing bool
	paused     bool
	halted     error
	waiters    []chan error
}

func NewUploadQueue(ctx context.Context, opts UploadQueueOptions) *UploadQueue {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 5
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	if opts.NetStatus == nil {
		opts.NetStatus = AlwaysOnline{}
	}

	q := &UploadQueue{opts: opts}

	if signal := opts.NetStatus.OnlineSignal(); signal != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-signal:
					if !ok {
						return
					}
					q.flushOffline(ctx)
				}
			}
		}()
	}

	return q
}

// Enqueue appends the chunk and guarantees eventual upload or durable
// staging. New chunks always join the tail.
func (q *UploadQueue) Enqueue(ctx context.Context, chunk *PendingChunk) {
	q.mu.Lock()
	if q.paused {
		q.mu.Unlock()
		q.stageChunk(ctx, chunk)
		return
	}
	q.queue = append(q.queue, chunk)
	start := !q.processing && !q.paused && q.halted == nil
	if start {
		q.processing = true
	}
	q.mu.Unlock()

	if start {
		go q.drain(ctx)
	}
}

// WaitForIdle blocks until every enqueued chunk is uploaded or durably
// staged. A halted queue reports the error that stopped it.
func (q *UploadQueue) WaitForIdle(ctx context.Context) error {
	q.mu.Lock()
	if q.halted != nil {
		err := q.halted
		q.mu.Unlock()
		return err
	}
	if !q.processing && len(q.queue) == 0 {
		q.mu.Unlock()
		return nil
	}
	waiter := make(chan error, 1)
	q.waiters = append(q.waiters, waiter)
	q.mu.Unlock()

	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *UploadQueue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if q.halted != nil || q.paused || len(q.queue) == 0 {
			q.processing = false
			q.notifyLocked(q.halted)
			q.mu.Unlock()
			return
		}
		item := q.queue[0]
		q.queue = q.queue[1:]
		q.mu.Unlock()

		err := q.uploadChunk(ctx, item)
		if err == nil {
			continue
		}

		if q.opts.OnError != nil {
			q.opts.OnError(err)
		}

		if !q.opts.NetStatus.Online() {
			q.stageOffline(ctx, item)
			continue
		}

		q.mu.Lock()
		q.halted = err
		q.processing = false
		q.notifyLocked(err)
		q.mu.Unlock()
		return
	}
}

// stageOffline persists the failed chunk plus everything still queued and
// pauses draining until an online signal arrives. Staged chunks count as
// durably handled for idle purposes.
func (q *UploadQueue) stageOffline(ctx context.Context, failed *PendingChunk) {
	q.mu.Lock()
	rest := q.queue
	q.queue = nil
	q.paused = true
	q.mu.Unlock()

	for _, chunk := range append([]*PendingChunk{failed}, rest...) {
		q.stageChunk(ctx, chunk)
	}
}

func (q *UploadQueue) stageChunk(ctx context.Context, chunk *PendingChunk) {
	if chunk.persistedID != "" {
		return
	}
	stored := &StoredChunk{
		ID:         chunk.ID,
		SessionID:  q.opts.SessionID,
		StreamType: chunk.StreamType.String(),
		ChunkIndex: chunk.ChunkIndex,
		DurationMs: chunk.DurationMs,
		Payload:    chunk.Data,
	}
	if err := q.opts.OfflineStore.Save(ctx, stored); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("chunk_id", chunk.ID).Msg("failed to stage chunk offline")
		return
	}
	chunk.persistedID = chunk.ID
}

// flushOffline replays staged chunks ahead of newer queued data once
// connectivity returns.
func (q *UploadQueue) flushOffline(ctx context.Context) {
	stored, err := q.opts.OfflineStore.ReadAll(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to read offline chunks")
		return
	}

	recovered := make([]*PendingChunk, 0, len(stored))
	for _, s := range stored {
		recovered = append(recovered, q.opts.OfflineStore.pendingChunk(s))
	}

	q.mu.Lock()
	if q.halted != nil {
		q.mu.Unlock()
		return
	}
	q.queue = append(recovered, q.queue...)
	q.paused = false
	start := !q.processing && len(q.queue) > 0
	if start {
		q.processing = true
	}
	q.mu.Unlock()

	if start {
		go q.drain(ctx)
	}
}

func (q *UploadQueue) uploadChunk(ctx context.Context, chunk *PendingChunk) error {
	sum := sha256.Sum256(chunk.Data)
	checksum := base64.StdEncoding.EncodeToString(sum[:])
	byteSize := int64(len(chunk.Data))

	operation := func() (*dto.SignChunkResponse, error) {
		index := chunk.ChunkIndex
		signed, err := q.opts.API.SignChunk(ctx, dto.SignChunkRequest{
			StreamType: chunk.StreamType,
			ChunkIndex: &index,
			ByteSize:   byteSize,
			Checksum:   checksum,
			MimeType:   q.opts.MimeType,
		})
		if err != nil {
			return nil, q.classify(err)
		}
		if err := q.opts.API.UploadChunk(ctx, signed.UploadURL, q.opts.MimeType, checksum, chunk.Data); err != nil {
			return nil, q.classify(err)
		}
		if err := q.opts.API.CompleteChunk(ctx, signed.ChunkID, checksum, byteSize); err != nil {
			return nil, q.classify(err)
		}
		return signed, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.opts.RetryInterval
	bo.MaxInterval = 10 * time.Second

	signed, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(q.opts.MaxRetries)))
	if err != nil {
		return err
	}

	if chunk.persistedID != "" {
		if err := q.opts.OfflineStore.Delete(ctx, chunk.persistedID); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("chunk_id", chunk.ID).Msg("failed to purge staged chunk")
		}
		chunk.persistedID = ""
	}

	if q.opts.OnChunkUploaded != nil {
		q.opts.OnChunkUploaded(ChunkUploadResult{
			ChunkID:    signed.ChunkID.String(),
			ChunkIndex: chunk.ChunkIndex,
			StreamType: chunk.StreamType,
			ByteSize:   byteSize,
			Checksum:   checksum,
			StorageKey: signed.StorageKey,
			UploadedAt: time.Now().UTC(),
		})
	}

	return nil
}

// classify decides whether an attempt is worth retrying. Offline failures
// and rejections the server will keep repeating are permanent; everything
// else backs off and retries.
func (q *UploadQueue) classify(err error) error {
	if !q.opts.NetStatus.Online() {
		return backoff.Permanent(err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError && apiErr.Status != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
	}
	return err
}

func (q *UploadQueue) notifyLocked(err error) {
	if len(q.queue) > 0 && err == nil {
		return
	}
	for _, waiter := range q.waiters {
		waiter <- err
	}
	q.waiters = nil
}
