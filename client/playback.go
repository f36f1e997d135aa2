package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"proctor-recorder/constant"
	"proctor-recorder/dto"
)

// ChunkFetcher retrieves raw bytes for a manifest or chunk URL.
type ChunkFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ChunkSink is an incremental playback buffer: chunks are appended in
// index order, one at a time, and EndOfStream marks the recording
// complete.
type ChunkSink interface {
	Append(ctx context.Context, data []byte) error
	EndOfStream() error
}

type ManifestPlayerConfig struct {
	ManifestURL     string
	PreferredStream constant.StreamType

	// Fetcher defaults to plain HTTP.
	Fetcher ChunkFetcher

	// Sink enables incremental append playback. When nil the player falls
	// back to eager concatenation, exposed via Blob.
	Sink ChunkSink
}

// ManifestPlayer reconstructs a playable stream from a frozen recording
// manifest.
type ManifestPlayer struct {
	cfg      ManifestPlayerConfig
	manifest *dto.RecordingManifest
	blob     []byte
}

func NewManifestPlayer(cfg ManifestPlayerConfig) *ManifestPlayer {
	if cfg.Fetcher == nil {
		cfg.Fetcher = &httpFetcher{client: http.DefaultClient}
	}
	return &ManifestPlayer{cfg: cfg}
}

// Load fetches the manifest, selects a stream and reconstructs playback:
// incremental append when a sink is configured, whole-blob concatenation
// otherwise.
func (p *ManifestPlayer) Load(ctx context.Context) error {
	raw, err := p.cfg.Fetcher.Fetch(ctx, p.cfg.ManifestURL)
	if err != nil {
		return fmt.Errorf("unable to load manifest: %w", err)
	}

	manifest := &dto.RecordingManifest{}
	if err := json.Unmarshal(raw, manifest); err != nil {
		return fmt.Errorf("unable to parse manifest: %w", err)
	}
	p.manifest = manifest

	stream := p.selectStream()
	if stream == nil {
		return fmt.Errorf("manifest does not contain any streams")
	}

	if p.cfg.Sink != nil {
		return p.playWithSink(ctx, stream)
	}
	return p.playByConcatenation(ctx, stream)
}

func (p *ManifestPlayer) Manifest() *dto.RecordingManifest {
	return p.manifest
}

// Blob holds the concatenated recording after a fallback Load.
func (p *ManifestPlayer) Blob() []byte {
	return p.blob
}

func (p *ManifestPlayer) selectStream() *dto.ManifestStream {
	if len(p.manifest.Streams) == 0 {
		return nil
	}
	if p.cfg.PreferredStream != "" {
		for i := range p.manifest.Streams {
			if p.manifest.Streams[i].StreamType == p.cfg.PreferredStream {
				return &p.manifest.Streams[i]
			}
		}
	}
	return &p.manifest.Streams[0]
}

func (p *ManifestPlayer) playWithSink(ctx context.Context, stream *dto.ManifestStream) error {
	for _, chunk := range stream.Chunks {
		data, err := p.fetchChunk(ctx, chunk)
		if err != nil {
			return err
		}
		if err := p.cfg.Sink.Append(ctx, data); err != nil {
			return fmt.Errorf("failed to append chunk %s: %w", chunk.StorageKey, err)
		}
	}
	return p.cfg.Sink.EndOfStream()
}

func (p *ManifestPlayer) playByConcatenation(ctx context.Context, stream *dto.ManifestStream) error {
	var blob []byte
	for _, chunk := range stream.Chunks {
		data, err := p.fetchChunk(ctx, chunk)
		if err != nil {
			return err
		}
		blob = append(blob, data...)
	}
	p.blob = blob
	return nil
}

func (p *ManifestPlayer) fetchChunk(ctx context.Context, chunk dto.ManifestChunkEntry) ([]byte, error) {
	chunkURL, err := p.resolveChunkURL(chunk.StorageKey)
	if err != nil {
		return nil, err
	}
	data, err := p.cfg.Fetcher.Fetch(ctx, chunkURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunk %s: %w", chunk.StorageKey, err)
	}
	return data, nil
}

// resolveChunkURL keys off the manifest's own location; absolute storage
// keys pass through untouched.
func (p *ManifestPlayer) resolveChunkURL(storageKey string) (string, error) {
	if strings.HasPrefix(storageKey, "http://") || strings.HasPrefix(storageKey, "https://") {
		return storageKey, nil
	}
	base, err := url.Parse(p.cfg.ManifestURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(storageKey)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

type httpFetcher struct {
	client *http.Client
}

func (f *httpFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	return io.ReadAll(resp.Body)
}
