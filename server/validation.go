package server

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/skillsenselab/scribed/errors"
	"github.com/skillsenselab/scribed/job"
)

var validate = validator.New()

// submitOptions are the multipart form fields accompanying an upload.
type submitOptions struct {
	Language          string `form:"language" validate:"omitempty,alpha,min=2,max=8"`
	ModelSize         string `form:"model_size"`
	EnableDiarization bool   `form:"enable_diarization"`
	NumSpeakers       int    `form:"num_speakers" validate:"omitempty,min=1,max=32"`
	MinSpeakers       int    `form:"min_speakers" validate:"omitempty,min=1,max=32"`
	MaxSpeakers       int    `form:"max_speakers" validate:"omitempty,min=1,max=32,gtefield=MinSpeakers"`
}

// bindOptions parses and validates job options from the request form.
// Every rejection happens before a job is created.
func (h *Handler) bindOptions(c *gin.Context) (job.Options, error) {
	var opts submitOptions
	if err := c.ShouldBind(&opts); err != nil {
		return job.Options{}, errors.Validation(fmt.Sprintf("Invalid job options: %s", err))
	}
	if err := validate.Struct(&opts); err != nil {
		return job.Options{}, errors.Validation(validationMessage(err))
	}

	if opts.ModelSize == "" {
		opts.ModelSize = h.defModel
	}
	if !h.knownModel(opts.ModelSize) {
		return job.Options{}, errors.Validation(fmt.Sprintf(
			"Unknown model size %q (available: %s)", opts.ModelSize, strings.Join(h.models, ", ")))
	}
	if opts.NumSpeakers > 0 && (opts.MinSpeakers > 0 || opts.MaxSpeakers > 0) {
		return job.Options{}, errors.Validation("num_speakers cannot be combined with min_speakers/max_speakers")
	}

	return job.Options{
		Language:          strings.ToLower(opts.Language),
		ModelSize:         opts.ModelSize,
		EnableDiarization: opts.EnableDiarization,
		NumSpeakers:       opts.NumSpeakers,
		MinSpeakers:       opts.MinSpeakers,
		MaxSpeakers:       opts.MaxSpeakers,
	}, nil
}

func (h *Handler) knownModel(name string) bool {
	for _, m := range h.models {
		if m == name {
			return true
		}
	}
	return false
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
	}
	return "Invalid job options: " + strings.Join(parts, "; ")
}
