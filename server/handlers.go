package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillsenselab/scribed/audio"
	"github.com/skillsenselab/scribed/capability"
	"github.com/skillsenselab/scribed/diarization"
	"github.com/skillsenselab/scribed/errors"
	"github.com/skillsenselab/scribed/export"
	"github.com/skillsenselab/scribed/job"
	"github.com/skillsenselab/scribed/logger"
	"github.com/skillsenselab/scribed/scheduler"
	"github.com/skillsenselab/scribed/transcription"
	"github.com/skillsenselab/scribed/translation"
)

// TranslationKey is the registry key for the translation capability.
const TranslationKey = "default"

// Scheduler is the scheduler surface the handlers need.
type Scheduler interface {
	Submit(id string) error
	Cancel(id string) error
}

// Handler wires the HTTP routes to the job store, scheduler, and
// capability registries.
type Handler struct {
	store      *job.Store
	reporter   *job.Reporter
	sched      Scheduler
	audioCfg   audio.Config
	uploadDir  string
	models     []string
	defModel   string
	asr        *capability.Registry[transcription.Provider]
	diar       *capability.Registry[diarization.Provider]
	translator *capability.Registry[translation.Provider]
	log        *logger.Logger
}

// HandlerDeps bundles the Handler's collaborators.
type HandlerDeps struct {
	Store        *job.Store
	Reporter     *job.Reporter
	Scheduler    Scheduler
	AudioConfig  audio.Config
	UploadDir    string
	Models       []string
	DefaultModel string
	ASR          *capability.Registry[transcription.Provider]
	Diarization  *capability.Registry[diarization.Provider]
	Translator   *capability.Registry[translation.Provider]
}

func NewHandler(deps HandlerDeps) *Handler {
	if deps.DefaultModel == "" {
		deps.DefaultModel = scheduler.DefaultModelSize
	}
	return &Handler{
		store:      deps.Store,
		reporter:   deps.Reporter,
		sched:      deps.Scheduler,
		audioCfg:   deps.AudioConfig,
		uploadDir:  deps.UploadDir,
		models:     deps.Models,
		defModel:   deps.DefaultModel,
		asr:        deps.ASR,
		diar:       deps.Diarization,
		translator: deps.Translator,
		log:        logger.WithComponent("handlers"),
	}
}

// Register mounts all routes on the engine.
func (h *Handler) Register(engine *gin.Engine) {
	v1 := engine.Group("/api/v1")
	v1.POST("/transcribe/file", h.submit)
	v1.GET("/transcribe/job/:id", h.status)
	v1.DELETE("/transcribe/job/:id", h.delete)
	v1.GET("/transcribe/job/:id/export", h.export)
	v1.GET("/transcribe/job/:id/events", h.events)
	v1.GET("/models", h.listModels)
	v1.GET("/health", h.health)
}

// submitResponse is the 202 body for an accepted job.
type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// submit accepts a multipart upload plus options, validates everything
// before any job exists, then creates and enqueues the job.
func (h *Handler) submit(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondWithError(c, errors.Validation("Missing file upload field \"file\""))
		return
	}

	opts, err := h.bindOptions(c)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	// Format and size are rejected here; a bad upload never gets a job id.
	if err := h.audioCfg.ValidateUpload(fileHeader.Filename, fileHeader.Size); err != nil {
		RespondWithError(c, err)
		return
	}

	path, err := h.saveUpload(fileHeader)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	j := h.store.Create(opts, path)
	if err := h.sched.Submit(j.ID); err != nil {
		RespondWithError(c, err)
		return
	}

	RespondAccepted(c, submitResponse{JobID: j.ID, Status: string(j.Status)})
}

// saveUpload streams the upload into the upload directory under a
// generated name, keeping the original extension for format detection.
func (h *Handler) saveUpload(fileHeader *multipart.FileHeader) (string, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", errors.Validation("Cannot read file upload")
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	path := filepath.Join(h.uploadDir, uuid.NewString()+ext)

	dst, err := os.Create(path)
	if err != nil {
		return "", errors.Internal(fmt.Errorf("create upload file: %w", err))
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", errors.Internal(fmt.Errorf("write upload file: %w", err))
	}
	return path, nil
}

func (h *Handler) status(c *gin.Context) {
	j, err := h.reporter.Status(c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, j)
}

// delete cancels a live job or removes a terminal one.
func (h *Handler) delete(c *gin.Context) {
	id := c.Param("id")

	j, err := h.store.Get(id)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	if !j.Status.Terminal() {
		if err := h.sched.Cancel(id); err != nil {
			RespondWithError(c, err)
			return
		}
		RespondNoContent(c)
		return
	}
	if err := h.store.Delete(id); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondNoContent(c)
}

// export renders a completed job's result, optionally translated.
func (h *Handler) export(c *gin.Context) {
	j, err := h.store.Get(c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	if j.Status != job.StatusCompleted || j.Result == nil {
		RespondWithError(c, errors.InvalidState(j.ID, string(j.Status), "export"))
		return
	}

	format, err := export.ParseFormat(c.DefaultQuery("format", "txt"))
	if err != nil {
		RespondWithError(c, err)
		return
	}

	result := j.Result
	if target := c.Query("target_lang"); target != "" {
		result, err = h.translate(c, result, target)
		if err != nil {
			RespondWithError(c, err)
			return
		}
	}

	out, err := export.Render(format, result, nil)
	if err != nil {
		RespondWithError(c, err)
		return
	}

	filename := fmt.Sprintf("%s.%s", j.ID, format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, format.ContentType(), out)
}

// translate returns a copy of the result with every segment text and the
// full text translated to target.
func (h *Handler) translate(c *gin.Context, result *transcription.Result, target string) (*transcription.Result, error) {
	if h.translator == nil {
		return nil, errors.Validation("Translation is not configured")
	}
	provider, release, err := h.translator.Acquire(c.Request.Context(), TranslationKey)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx := c.Request.Context()
	out := *result
	out.Segments = make([]transcription.Segment, len(result.Segments))
	copy(out.Segments, result.Segments)

	var texts []string
	for i := range out.Segments {
		translated, err := provider.Translate(ctx, out.Segments[i].Text, result.Language, target)
		if err != nil {
			return nil, err
		}
		out.Segments[i].Text = translated
		if t := strings.TrimSpace(translated); t != "" {
			texts = append(texts, t)
		}
	}
	out.Text = strings.Join(texts, " ")
	out.Language = target
	return &out, nil
}

// modelsResponse describes selectable transcription models.
type modelsResponse struct {
	Models  []modelInfo `json:"models"`
	Default string      `json:"default"`
}

type modelInfo struct {
	Name   string `json:"name"`
	Loaded bool   `json:"loaded"`
}

func (h *Handler) listModels(c *gin.Context) {
	resp := modelsResponse{Default: h.defModel}
	for _, m := range h.models {
		resp.Models = append(resp.Models, modelInfo{Name: m, Loaded: h.asr.Loaded(m)})
	}
	RespondOK(c, resp)
}

// health reports service liveness plus capability availability. A
// capability is probed only when already loaded; health never forces a
// model load.
func (h *Handler) health(c *gin.Context) {
	ctx := c.Request.Context()
	capabilities := gin.H{
		"transcription": h.asr.Available(ctx, h.defModel),
		"diarization":   h.diar.Available(ctx, scheduler.DiarizationKey),
	}
	if h.translator != nil {
		capabilities["translation"] = h.translator.Available(ctx, TranslationKey)
	}
	RespondOK(c, gin.H{
		"status":       "ok",
		"capabilities": capabilities,
	})
}
