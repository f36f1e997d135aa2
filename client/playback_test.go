package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor-recorder/constant"
	"proctor-recorder/dto"
)

// mapFetcher serves canned payloads by URL and records access order.
type mapFetcher struct {
	payloads map[string][]byte
	fetched  []string
}

func (f *mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.fetched = append(f.fetched, url)
	data, ok := f.payloads[url]
	if !ok {
		return nil, errors.New("not found: " + url)
	}
	return data, nil
}

type memorySink struct {
	appended [][]byte
	ended    bool
}

func (s *memorySink) Append(_ context.Context, data []byte) error {
	s.appended = append(s.appended, data)
	return nil
}

func (s *memorySink) EndOfStream() error {
	s.ended = true
	return nil
}

func testManifest(t *testing.T) []byte {
	t.Helper()
	manifest := dto.RecordingManifest{
		SessionID:       "s1",
		TotalDurationMs: 30_000,
		Streams: []dto.ManifestStream{
			{
				StreamType: constant.StreamTypeWebcam,
				DurationMs: 30_000,
				Chunks: []dto.ManifestChunkEntry{
					{ChunkIndex: 0, StorageKey: "examSessions/s1/webcam/chunk-0.webm"},
					{ChunkIndex: 1, StorageKey: "examSessions/s1/webcam/chunk-1.webm"},
					{ChunkIndex: 2, StorageKey: "examSessions/s1/webcam/chunk-2.webm"},
				},
			},
			{
				StreamType: constant.StreamTypeScreen,
				DurationMs: 10_000,
				Chunks: []dto.ManifestChunkEntry{
					{ChunkIndex: 0, StorageKey: "https://cdn.example.com/screen/chunk-0.webm"},
				},
			},
		},
	}
	raw, err := json.Marshal(manifest)
	require.NoError(t, err)
	return raw
}

func TestPlayerAppendsChunksInOrderThenEndsStream(t *testing.T) {
	fetcher := &mapFetcher{payloads: map[string][]byte{
		"https://cdn.example.com/manifest.json":                     testManifest(t),
		"https://cdn.example.com/examSessions/s1/webcam/chunk-0.webm": []byte("c0"),
		"https://cdn.example.com/examSessions/s1/webcam/chunk-1.webm": []byte("c1"),
		"https://cdn.example.com/examSessions/s1/webcam/chunk-2.webm": []byte("c2"),
	}}
	sink := &memorySink{}

	player := NewManifestPlayer(ManifestPlayerConfig{
		ManifestURL: "https://cdn.example.com/manifest.json",
		Fetcher:     fetcher,
		Sink:        sink,
	})
	require.NoError(t, player.Load(context.Background()))

	require.Len(t, sink.appended, 3)
	assert.Equal(t, [][]byte{[]byte("c0"), []byte("c1"), []byte("c2")}, sink.appended)
	assert.True(t, sink.ended)

	require.NotNil(t, player.Manifest())
	assert.Equal(t, "s1", player.Manifest().SessionID)
}

func TestPlayerConcatenationFallback(t *testing.T) {
	fetcher := &mapFetcher{payloads: map[string][]byte{
		"https://cdn.example.com/manifest.json":                     testManifest(t),
		"https://cdn.example.com/examSessions/s1/webcam/chunk-0.webm": []byte("AAA"),
		"https://cdn.example.com/examSessions/s1/webcam/chunk-1.webm": []byte("BBB"),
		"https://cdn.example.com/examSessions/s1/webcam/chunk-2.webm": []byte("CCC"),
	}}

	player := NewManifestPlayer(ManifestPlayerConfig{
		ManifestURL: "https://cdn.example.com/manifest.json",
		Fetcher:     fetcher,
	})
	require.NoError(t, player.Load(context.Background()))

	assert.Equal(t, []byte("AAABBBCCC"), player.Blob())
}

func TestPlayerSelectsPreferredStream(t *testing.T) {
	fetcher := &mapFetcher{payloads: map[string][]byte{
		"https://cdn.example.com/manifest.json":       testManifest(t),
		"https://cdn.example.com/screen/chunk-0.webm": []byte("screen"),
	}}
	sink := &memorySink{}

	player := NewManifestPlayer(ManifestPlayerConfig{
		ManifestURL:     "https://cdn.example.com/manifest.json",
		PreferredStream: constant.StreamTypeScreen,
		Fetcher:         fetcher,
		Sink:            sink,
	})
	require.NoError(t, player.Load(context.Background()))

	// Absolute storage keys bypass base-URL resolution.
	require.Len(t, sink.appended, 1)
	assert.Equal(t, []byte("screen"), sink.appended[0])
	assert.Contains(t, fetcher.fetched, "https://cdn.example.com/screen/chunk-0.webm")
}

func TestPlayerFallsBackToFirstStreamWhenPreferredMissing(t *testing.T) {
	manifest := dto.RecordingManifest{
		SessionID: "s1",
		Streams: []dto.ManifestStream{{
			StreamType: constant.StreamTypeWebcam,
			Chunks:     []dto.ManifestChunkEntry{{ChunkIndex: 0, StorageKey: "https://cdn.example.com/w/chunk-0.webm"}},
		}},
	}
	raw, err := json.Marshal(manifest)
	require.NoError(t, err)

	fetcher := &mapFetcher{payloads: map[string][]byte{
		"https://api.example.com/manifest":        raw,
		"https://cdn.example.com/w/chunk-0.webm": []byte("webcam"),
	}}

	player := NewManifestPlayer(ManifestPlayerConfig{
		ManifestURL:     "https://api.example.com/manifest",
		PreferredStream: constant.StreamTypeScreen,
		Fetcher:         fetcher,
	})
	require.NoError(t, player.Load(context.Background()))
	assert.Equal(t, []byte("webcam"), player.Blob())
}

func TestPlayerRejectsEmptyManifest(t *testing.T) {
	raw, err := json.Marshal(dto.RecordingManifest{SessionID: "s1"})
	require.NoError(t, err)

	fetcher := &mapFetcher{payloads: map[string][]byte{
		"https://api.example.com/manifest": raw,
	}}

	player := NewManifestPlayer(ManifestPlayerConfig{
		ManifestURL: "https://api.example.com/manifest",
		Fetcher:     fetcher,
	})
	assert.Error(t, player.Load(context.Background()))
}

func TestPlayerPropagatesChunkFetchFailure(t *testing.T) {
	fetcher := &mapFetcher{payloads: map[string][]byte{
		"https://cdn.example.com/manifest.json": testManifest(t),
	}}
	sink := &memorySink{}

	player := NewManifestPlayer(ManifestPlayerConfig{
		ManifestURL: "https://cdn.example.com/manifest.json",
		Fetcher:     fetcher,
		Sink:        sink,
	})
	assert.Error(t, player.Load(context.Background()))
	assert.False(t, sink.ended)
}
