package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/videoforge/videoforge/internal/apperr"
	"github.com/videoforge/videoforge/internal/diskbudget"
	"github.com/videoforge/videoforge/internal/models"
	"github.com/videoforge/videoforge/internal/tasks"
)

type uploadInitRequest struct {
	UploadID          string                 `json:"uploadId" binding:"required"`
	FileName          string                 `json:"fileName" binding:"required"`
	FileSize          int64                  `json:"fileSize" binding:"required"`
	FileMd5           string                 `json:"fileMd5"`
	ConversionRequest map[string]interface{} `json:"conversionRequest"`
}

func (s *Server) handleUploadInit(c *gin.Context) {
	var req uploadInitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(apperr.Validation, "invalid request body", err))
		return
	}
	if s.config.MaxFileSize > 0 && req.FileSize > s.config.MaxFileSize {
		respondError(c, apperr.WithDetail(apperr.FileTooLarge, "file exceeds the per-file size limit",
			map[string]interface{}{"maxFileSize": s.config.MaxFileSize}))
		return
	}

	estOutput := int64(0)
	if req.ConversionRequest != nil {
		codec, _ := req.ConversionRequest["codec"].(string)
		container, _ := req.ConversionRequest["container"].(string)
		resolution, _ := req.ConversionRequest["resolution"].(string)
		estOutput = diskbudget.EstimateOutput(req.FileSize, codec, container, resolution)
	}
	if check := s.budget.CheckSpace(req.FileSize, estOutput, true); !check.HasEnough {
		respondError(c, apperr.WithDetail(apperr.InsufficientDiskSpace, "not enough disk space for this upload", check.Detail))
		return
	}

	onExisting := func(sess *models.UploadSession, artifactPath string) (string, string, error) {
		return s.createTaskForArtifact(c, sess.FileName, sess.TotalSize, artifactPath, req.ConversionRequest)
	}

	result, err := s.uploads.Init(req.UploadID, req.FileName, req.FileSize, s.config.ChunkSize, req.FileMd5, req.ConversionRequest, ownerID(c), onExisting)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"chunkSize":   result.ChunkSize,
		"totalChunks": result.TotalChunks,
		"fileExists":  result.AlreadyExists,
		"taskId":      result.TaskID,
		"taskName":    result.TaskName,
	})
}

func (s *Server) handleUploadChunk(c *gin.Context) {
	uploadID := c.PostForm("uploadId")
	chunkIndexStr := c.PostForm("chunkIndex")
	chunkMd5 := c.PostForm("chunkMd5")

	chunkIndex, err := strconv.Atoi(chunkIndexStr)
	if err != nil {
		respondError(c, apperr.New(apperr.Validation, "chunkIndex must be an integer"))
		return
	}

	fileHeader, err := c.FormFile("chunk")
	if err != nil {
		respondError(c, apperr.Wrap(apperr.Validation, "missing chunk field", err))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, apperr.Wrap(apperr.Fatal, "open uploaded chunk", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, apperr.Wrap(apperr.Fatal, "read uploaded chunk", err))
		return
	}

	_, receivedCount, totalChunks, err := s.uploads.AcceptChunk(uploadID, chunkIndex, data, chunkMd5)
	if err != nil {
		respondError(c, err)
		return
	}

	progress := 0
	if totalChunks > 0 {
		progress = receivedCount * 100 / totalChunks
	}

	c.JSON(http.StatusOK, gin.H{
		"chunkIndex":     chunkIndex,
		"uploadedChunks": receivedCount,
		"totalChunks":    totalChunks,
		"progress":       progress,
	})
}

func (s *Server) handleUploadStatus(c *gin.Context) {
	uploadID := c.Param("uploadId")

	status, err := s.uploads.GetStatus(uploadID)
	if err != nil {
		respondError(c, err)
		return
	}

	progress := 0
	if status.TotalBytes > 0 {
		progress = int(status.UploadedBytes * 100 / status.TotalBytes)
	}

	c.JSON(http.StatusOK, gin.H{
		"uploadedChunks": status.ReceivedIndices,
		"totalChunks":    status.Total,
		"uploadedBytes":  status.UploadedBytes,
		"totalBytes":     status.TotalBytes,
		"progress":       progress,
	})
}

func (s *Server) handleUploadComplete(c *gin.Context) {
	uploadID := c.Param("uploadId")

	onHandoff := func(sess *models.UploadSession, artifactPath string) (string, string, error) {
		return s.createTaskForArtifact(c, sess.FileName, sess.TotalSize, artifactPath, sess.Params)
	}

	taskID, taskName, err := s.uploads.Complete(uploadID, onHandoff)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":   taskID,
		"taskName": taskName,
		"message":  "upload complete, conversion started",
	})
}

// createTaskForArtifact is the C3->C6 handoff shared by both the
// instant-upload (dedup) path and the normal merge-complete path.
func (s *Server) createTaskForArtifact(c *gin.Context, fileName string, size int64, artifactPath string, params map[string]interface{}) (string, string, error) {
	t, err := s.engine.Create(c.Request.Context(), tasks.CreateParams{
		Name:             fileName,
		ArtifactPath:     artifactPath,
		OriginalFileName: fileName,
		OriginalSize:     size,
		OriginalFormat:   extOf(fileName),
		Params:           params,
	})
	if err != nil {
		return "", "", err
	}
	s.budget.UpdateUsage(size, models.UsageOriginals)
	return t.ID, t.Name, nil
}

func ownerID(c *gin.Context) string {
	return c.GetHeader("X-Client-Id")
}

func extOf(fileName string) string {
	for i := len(fileName) - 1; i >= 0; i-- {
		if fileName[i] == '.' {
			return fileName[i+1:]
		}
	}
	return ""
}
