package controller

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/itish2003/ragkb/crawler"
	"github.com/itish2003/ragkb/models"
	"github.com/itish2003/ragkb/services"
)

// maxAudioBytes bounds voice query uploads.
const maxAudioBytes = 25 << 20

// RAGController handles the HTTP requests for the knowledge base API. It
// depends on the RAGService to perform the actual business logic.
type RAGController struct {
	ragService    services.RAGService
	maxAudioBytes int64
}

func NewRAGController(service services.RAGService) *RAGController {
	return &RAGController{ragService: service, maxAudioBytes: maxAudioBytes}
}

// RegisterRoutes mounts every endpoint under the given group.
func (c *RAGController) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/documents", c.UploadDocument)
	api.GET("/documents", c.ListDocuments)
	api.DELETE("/documents/:id", c.DeleteDocument)
	api.POST("/queries/text", c.QueryText)
	api.POST("/queries/audio", c.QueryAudio)
	api.POST("/search", c.Search)
	api.POST("/crawl", c.StartCrawl)
	api.GET("/crawl", c.ListCrawls)
	api.GET("/crawl/:id", c.CrawlStatus)
	api.GET("/stats", c.Stats)
}

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrEmbedding), errors.Is(err, services.ErrGeneration), errors.Is(err, crawler.ErrCrawlFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(ctx *gin.Context, err error, message string) {
	log.Printf("CONTROLLER: %s %s: %s: %v", ctx.Request.Method, ctx.FullPath(), message, err)
	ctx.JSON(statusFor(err), models.MessageResponse{Status: "error", Message: message, Error: err.Error()})
}

// UploadDocument is the handler for POST /api/v1/documents (multipart field "file").
func (c *RAGController) UploadDocument(ctx *gin.Context) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(ctx, err, "Failed to read upload")
		return
	}
	defer f.Close()

	meta, err := c.ragService.IngestUpload(ctx.Request.Context(), fh.Filename, f)
	if err != nil {
		fail(ctx, err, "Failed to ingest document")
		return
	}
	ctx.JSON(http.StatusCreated, meta)
}

// ListDocuments is the handler for GET /api/v1/documents.
func (c *RAGController) ListDocuments(ctx *gin.Context) {
	docs, err := c.ragService.ListDocuments(ctx.Request.Context())
	if err != nil {
		fail(ctx, err, "Failed to list documents")
		return
	}
	ctx.JSON(http.StatusOK, models.DocumentsResponse{Count: len(docs), Documents: docs})
}

// DeleteDocument is the handler for DELETE /api/v1/documents/:id.
func (c *RAGController) DeleteDocument(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.ragService.Remove(ctx.Request.Context(), id); err != nil {
		fail(ctx, err, "Failed to delete document")
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Status: "success", Message: "Document " + id + " deleted"})
}

// QueryText is the handler for POST /api/v1/queries/text. The answer is
// streamed as plain text while it is generated.
func (c *RAGController) QueryText(ctx *gin.Context) {
	var req models.QueryTextRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	mode := services.ModeFull
	if req.Short {
		mode = services.ModeShort
	}
	c.streamAnswer(ctx, req.Query, mode)
}

// QueryAudio is the handler for POST /api/v1/queries/audio (multipart field
// "audio_file"). With response=audio the short answer comes back as WAV;
// otherwise it is streamed as text.
func (c *RAGController) QueryAudio(ctx *gin.Context) {
	fh, err := ctx.FormFile("audio_file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if fh.Size > c.maxAudioBytes {
		ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Audio file exceeds %d bytes", c.maxAudioBytes)})
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(ctx, err, "Failed to read audio")
		return
	}
	audio, err := io.ReadAll(io.LimitReader(f, c.maxAudioBytes+1))
	f.Close()
	if err != nil {
		fail(ctx, err, "Failed to read audio")
		return
	}
	if int64(len(audio)) > c.maxAudioBytes {
		ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("Audio file exceeds %d bytes", c.maxAudioBytes)})
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "audio/wav"
	}
	query, err := c.ragService.Transcribe(ctx.Request.Context(), audio, mimeType)
	if err != nil {
		fail(ctx, err, "An internal error occurred while processing the audio file")
		return
	}
	if strings.TrimSpace(query) == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Could not transcribe any text from the provided audio file"})
		return
	}
	log.Printf("CONTROLLER: Audio query received: '%s'", query)

	if ctx.PostForm("response") != "audio" {
		c.streamAnswer(ctx, query, services.ModeShort)
		return
	}

	answer, err := c.ragService.Answer(ctx.Request.Context(), query, services.ModeShort)
	if err != nil {
		fail(ctx, err, "Failed to generate AI response")
		return
	}
	var sb strings.Builder
	for fragment := range answer {
		sb.WriteString(fragment)
	}
	wav, err := c.ragService.Synthesize(ctx.Request.Context(), sb.String())
	if err != nil {
		fail(ctx, err, "Failed to synthesize the answer")
		return
	}
	ctx.Header("X-Transcript", query)
	ctx.Data(http.StatusOK, "audio/wav", wav)
}

func (c *RAGController) streamAnswer(ctx *gin.Context, query string, mode services.AnswerMode) {
	answer, err := c.ragService.Answer(ctx.Request.Context(), query, mode)
	if err != nil {
		fail(ctx, err, "Failed to generate AI response")
		return
	}
	ctx.Header("Content-Type", "text/plain; charset=utf-8")
	ctx.Header("X-Content-Type-Options", "nosniff")
	ctx.Status(http.StatusOK)
	for fragment := range answer {
		if _, err := ctx.Writer.WriteString(fragment); err != nil {
			log.Printf("CONTROLLER: Client went away mid-answer: %v", err)
			return
		}
		ctx.Writer.Flush()
	}
}

// Search is the handler for POST /api/v1/search.
func (c *RAGController) Search(ctx *gin.Context) {
	var req models.SearchRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	passages, err := c.ragService.Search(ctx.Request.Context(), req.Query, req.K)
	if err != nil {
		fail(ctx, err, "Failed to search")
		return
	}
	ctx.JSON(http.StatusOK, models.SearchResponse{Count: len(passages), Passages: passages})
}

// StartCrawl is the handler for POST /api/v1/crawl. The crawl runs in the
// background; poll GET /api/v1/crawl/:id for its outcome.
func (c *RAGController) StartCrawl(ctx *gin.Context) {
	var req models.CrawlRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	status, err := c.ragService.StartCrawl(req.URL)
	if err != nil {
		fail(ctx, err, "Failed to start crawl")
		return
	}
	ctx.JSON(http.StatusAccepted, status)
}

// CrawlStatus is the handler for GET /api/v1/crawl/:id.
func (c *RAGController) CrawlStatus(ctx *gin.Context) {
	status, err := c.ragService.CrawlStatus(ctx.Param("id"))
	if err != nil {
		fail(ctx, err, "Unknown crawl job")
		return
	}
	ctx.JSON(http.StatusOK, status)
}

// ListCrawls is the handler for GET /api/v1/crawl, newest job first.
func (c *RAGController) ListCrawls(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"jobs": c.ragService.ListCrawls()})
}

// Stats is the handler for GET /api/v1/stats.
func (c *RAGController) Stats(ctx *gin.Context) {
	n, err := c.ragService.CountEntries(ctx.Request.Context())
	if err != nil {
		fail(ctx, err, "Failed to count index entries")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": n})
}
