package service

import (
	"errors"
	"fmt"

	"github.com/MimeLyc/page-narrator/internal/pipeline"
	"github.com/MimeLyc/page-narrator/pkg/log"
)

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *pipeline.NarrationError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err with advice. It reports false for errors outside the
// narration taxonomy.
func (h *DefaultErrorHandler) Handle(err error) bool {
	var narrErr *pipeline.NarrationError
	if !errors.As(err, &narrErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	log.Error("Error Detail: %v\n advice: %s", err, h.GetAdvice(narrErr))
	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *pipeline.NarrationError) string {
	switch err.Type {
	case pipeline.ErrTypeBusy:
		return "Another stage is still running; wait for it to finish and try again"
	case pipeline.ErrTypeNotReady:
		return "Run text recognition first; rendering needs a freshly planned caption timeline"
	case pipeline.ErrTypeNotFound:
		return "The caption no longer exists; reload the captions and retry the edit"
	case pipeline.ErrTypeCollaborator:
		return "Check the OCR provider settings and that ffmpeg is installed and on PATH"
	case pipeline.ErrTypeValidation:
		return "Use an even resolution such as 1280x720 or 1920x1080 and a frame rate of 24, 30 or 60"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

// SafeExecute turns a panic in fn into an error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("runtime error: %v", r)
		}
	}()

	return fn()
}
