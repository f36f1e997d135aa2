package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"proctor-recorder/dto"
	"proctor-recorder/pkg/ratelimit"
	"proctor-recorder/pkg/storage"
	"proctor-recorder/repository"
	"proctor-recorder/service"
)

const (
	testOwner    = "owner-1"
	testChecksum = "3q2+7wAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="
)

type testServer struct {
	router *gin.Engine
	fake   *storage.Fake
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// File-backed so transaction connections share the schema.
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))

	repo := repository.NewRepoWithGorm(db)
	fake := storage.NewFake()
	limiter := ratelimit.New(100, time.Minute)

	sessions := service.NewSessionService(repo)
	chunks := service.NewChunkService(repo, sessions, fake, limiter, "test-bucket", 15*time.Minute)
	recordings := service.NewRecordingService(repo, sessions, nil)

	h := &Handler{
		Sessions:   sessions,
		Chunks:     chunks,
		Recordings: recordings,
		Flags:      service.NewFlagStore(),
		Settings:   dto.RecordingSettings{ChunkDurationMs: 10_000, MaxRetries: 5},
	}

	router := gin.New()
	h.RegisterRoutes(router)
	return &testServer{router: router, fake: fake}
}

func (s *testServer) do(t *testing.T, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set("X-Owner-Id", owner)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *testServer) start(t *testing.T, sessionID string, includeScreen bool) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/exam-sessions/"+sessionID+"/start", testOwner,
		dto.StartSessionRequest{IncludeScreen: includeScreen})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *testServer) sign(t *testing.T, sessionID, stream string, index int) dto.SignChunkResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/exam-sessions/"+sessionID+"/chunks/sign", testOwner, map[string]any{
		"streamType": stream,
		"chunkIndex": index,
		"byteSize":   1024,
		"checksum":   testChecksum,
		"mimeType":   "video/webm",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[dto.SignChunkResponse](t, rec)
}

func (s *testServer) complete(t *testing.T, sessionID string, signed dto.SignChunkResponse) {
	t.Helper()
	path := fmt.Sprintf("/api/exam-sessions/%s/chunks/%s/complete", sessionID, signed.ChunkID)
	rec := s.do(t, http.MethodPost, path, testOwner, dto.CompleteChunkRequest{
		Checksum: testChecksum,
		ByteSize: 1024,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMissingOwnerHeader(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/exam-sessions/s1/start", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "X-Owner-Id")
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	srv.start(t, "s1", false)

	// Foreign owner on an existing session.
	rec := srv.do(t, http.MethodPost, "/api/exam-sessions/s1/start", "owner-2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Unknown session.
	rec = srv.do(t, http.MethodPost, "/api/exam-sessions/nope/chunks/sign", testOwner, map[string]any{
		"streamType": "webcam",
		"chunkIndex": 0,
		"byteSize":   1024,
		"checksum":   testChecksum,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Duplicate uploaded index.
	signed := srv.sign(t, "s1", "webcam", 0)
	srv.complete(t, "s1", signed)
	rec = srv.do(t, http.MethodPost, "/api/exam-sessions/s1/chunks/sign", testOwner, map[string]any{
		"streamType": "webcam",
		"chunkIndex": 0,
		"byteSize":   1024,
		"checksum":   testChecksum,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Manifest before finalize.
	rec = srv.do(t, http.MethodGet, "/api/exam-sessions/s1/manifest", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignChunkRateLimitedStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))

	repo := repository.NewRepoWithGorm(db)
	sessions := service.NewSessionService(repo)
	chunks := service.NewChunkService(repo, sessions, storage.NewFake(), ratelimit.New(1, time.Minute), "test-bucket", 15*time.Minute)

	h := &Handler{
		Sessions:   sessions,
		Chunks:     chunks,
		Recordings: service.NewRecordingService(repo, sessions, nil),
		Flags:      service.NewFlagStore(),
	}
	router := gin.New()
	h.RegisterRoutes(router)
	srv := &testServer{router: router}

	srv.start(t, "s1", false)
	srv.sign(t, "s1", "webcam", 0)

	rec := srv.do(t, http.MethodPost, "/api/exam-sessions/s1/chunks/sign", testOwner, map[string]any{
		"streamType": "webcam",
		"chunkIndex": 1,
		"byteSize":   1024,
		"checksum":   testChecksum,
	})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestFullRecordingLifecycle(t *testing.T) {
	srv := newTestServer(t)
	srv.start(t, "s1", false)

	chunks := make([]dto.SignChunkResponse, 3)
	for i := range chunks {
		chunks[i] = srv.sign(t, "s1", "webcam", i)
		srv.complete(t, "s1", chunks[i])
	}

	finalizeBody := map[string]any{
		"totalDurationMs": 30_000,
		"streams": []map[string]any{{
			"streamType": "webcam",
			"durationMs": 30_000,
			"chunks": []map[string]any{
				{"chunkId": chunks[0].ChunkID, "chunkIndex": 0},
				{"chunkId": chunks[1].ChunkID, "chunkIndex": 1},
				{"chunkId": chunks[2].ChunkID, "chunkIndex": 2},
			},
		}},
	}
	rec := srv.do(t, http.MethodPost, "/api/exam-sessions/s1/finalize", testOwner, finalizeBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[dto.FinalizeResponse](t, rec)
	require.NotNil(t, result.Manifest)
	require.Len(t, result.Manifest.Streams, 1)
	assert.Len(t, result.Manifest.Streams[0].Chunks, 3)

	// Finalizing twice is rejected.
	rec = srv.do(t, http.MethodPost, "/api/exam-sessions/s1/finalize", testOwner, finalizeBody)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/exam-sessions/s1/manifest", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	manifest := decode[dto.RecordingManifest](t, rec)
	assert.Equal(t, "s1", manifest.SessionID)
	assert.EqualValues(t, 30_000, manifest.TotalDurationMs)
	for i, chunk := range manifest.Streams[0].Chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
	}
}

func TestAbortDeletesUploadedObjects(t *testing.T) {
	srv := newTestServer(t)
	srv.start(t, "s1", false)

	signed := srv.sign(t, "s1", "webcam", 0)
	srv.complete(t, "s1", signed)
	srv.sign(t, "s1", "webcam", 1)

	// A foreign owner cannot abort.
	rec := srv.do(t, http.MethodPost, "/api/exam-sessions/s1/abort", "owner-2",
		dto.AbortSessionRequest{Reason: "test"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, srv.fake.DeletedKeys())

	rec = srv.do(t, http.MethodPost, "/api/exam-sessions/s1/abort", testOwner,
		dto.AbortSessionRequest{Reason: "proctor terminated"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[dto.AbortSessionResponse](t, rec)
	assert.True(t, result.OK)
	assert.ElementsMatch(t, []string{
		"examSessions/s1/webcam/chunk-0.webm",
		"examSessions/s1/webcam/chunk-1.webm",
	}, result.DeletedKeys)
	assert.Len(t, srv.fake.DeletedKeys(), 2)

	// The session is terminal, so new uploads are refused.
	rec = srv.do(t, http.MethodPost, "/api/exam-sessions/s1/chunks/sign", testOwner, map[string]any{
		"streamType": "webcam",
		"chunkIndex": 2,
		"byteSize":   1024,
		"checksum":   testChecksum,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFlagEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/sessions/s1/flags", "", map[string]any{
		"type":       "TAB_SWITCH",
		"severity":   "warning",
		"relativeMs": 3000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	event := decode[service.FlagEvent](t, rec)
	assert.Equal(t, service.FlagTabSwitch, event.Type)
	assert.Equal(t, "s1", event.SessionID)

	rec = srv.do(t, http.MethodPost, "/api/sessions/s1/flags", "", map[string]any{
		"type":     "NOT_A_FLAG",
		"severity": "warning",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/sessions/s1/flags", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	log := decode[service.SessionFlagLog](t, rec)
	require.Len(t, log.Events, 1)
	assert.Equal(t, service.FlagSeverityWarning, log.Events[0].Severity)

	rec = srv.do(t, http.MethodGet, "/api/sessions/unknown/flags", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
