package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"proctor-recorder/dto"
	"proctor-recorder/service"
)

const ownerHeader = "X-Owner-Id"

type Handler struct {
	Sessions   service.SessionService
	Chunks     service.ChunkService
	Recordings service.RecordingService
	Flags      *service.FlagStore
	Settings   dto.RecordingSettings
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	sessions := r.Group("/api/exam-sessions/:sessionId")
	sessions.POST("/start", h.StartSession)
	sessions.POST("/chunks/sign", h.SignChunk)
	sessions.POST("/chunks/:chunkId/complete", h.CompleteChunk)
	sessions.POST("/finalize", h.Finalize)
	sessions.POST("/abort", h.Abort)
	sessions.GET("/manifest", h.GetManifest)

	flags := r.Group("/api/sessions/:sessionId/flags")
	flags.POST("", h.AddFlag)
	flags.GET("", h.GetFlags)
}

func ownerID(c *gin.Context) (string, bool) {
	owner := c.GetHeader(ownerHeader)
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Owner-Id header"})
		return "", false
	}
	return owner, true
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrRateLimited):
		status = http.StatusTooManyRequests
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) StartSession(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.Sessions.StartSession(c.Request.Context(), c.Param("sessionId"), owner, req.IncludeScreen)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StartSessionResponse{
		Session:   session,
		Recording: h.Settings,
	})
}

func (h *Handler) SignChunk(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var req dto.SignChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Chunks.RequestUploadURL(c.Request.Context(), c.Param("sessionId"), owner, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) CompleteChunk(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	chunkID, err := uuid.Parse(c.Param("chunkId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chunk id"})
		return
	}

	var req dto.CompleteChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = h.Chunks.MarkUploaded(c.Request.Context(), c.Param("sessionId"), owner, chunkID, req.Checksum, req.ByteSize)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) Finalize(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	var req dto.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Recordings.FinalizeRecording(c.Request.Context(), c.Param("sessionId"), owner, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Abort(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	sessionID := c.Param("sessionId")

	var req dto.AbortSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Ownership is checked before any storage object is touched.
	if _, err := h.Sessions.GetOwnedSession(c.Request.Context(), sessionID, owner); err != nil {
		writeError(c, err)
		return
	}

	deletedKeys, err := h.Chunks.DeleteChunks(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := h.Sessions.MarkAborted(c.Request.Context(), sessionID, req.Reason); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AbortSessionResponse{
		OK:          true,
		DeletedKeys: deletedKeys,
	})
}

func (h *Handler) GetManifest(c *gin.Context) {
	manifest, err := h.Recordings.GetManifest(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, manifest)
}

func (h *Handler) AddFlag(c *gin.Context) {
	var input service.FlagEventInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.Flags.AddEvent(c.Param("sessionId"), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (h *Handler) GetFlags(c *gin.Context) {
	log, err := h.Flags.SessionLog(c.Param("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}
