package studio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/logofresh/studio-renderer/pkg/models"
)

var (
	// ErrNoOutput means the encoder produced no data for a configuration.
	// The search skips such candidates.
	ErrNoOutput = errors.New("encoder produced no output")

	// ErrStaleExport is returned when a newer export started while this one
	// was searching; its result is discarded.
	ErrStaleExport = errors.New("export superseded by a newer request")

	// ErrNoImage is returned when a session has no working logo yet
	ErrNoImage = errors.New("no source image loaded")

	// ErrImageChanged is returned when the working logo was replaced while a
	// background removal was in flight
	ErrImageChanged = errors.New("source image changed during background removal")

	ErrInvalidColor       = errors.New("invalid color")
	ErrSessionNotFound    = errors.New("session not found")
	ErrRemoverUnavailable = errors.New("background removal is not configured")
)

// SearchExhaustedError reports that no scale/quality combination met the
// size limit.
type SearchExhaustedError struct {
	Format     models.Format
	LimitBytes int
	Attempts   int
}

func (e *SearchExhaustedError) Error() string {
	return fmt.Sprintf("no %s configuration fits under %d bytes after %d renders",
		e.Format, e.LimitBytes, e.Attempts)
}

// UserMessage is the text shown to the user
func (e *SearchExhaustedError) UserMessage() string {
	return fmt.Sprintf("Could not fit under %dKB. Try %s format.",
		e.LimitBytes/1024, strings.ToUpper(string(e.Format.Other())))
}

// DecodeError wraps a failure to load the source image
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user
func (e *DecodeError) UserMessage() string {
	return "Could not load the image. Please upload it again."
}

// RemovalError wraps a failed background removal. The working image is left
// untouched when it is returned.
type RemovalError struct {
	Err error
}

func (e *RemovalError) Error() string {
	return fmt.Sprintf("background removal failed: %v", e.Err)
}

func (e *RemovalError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user
func (e *RemovalError) UserMessage() string {
	if errors.Is(e.Err, ErrRemoverUnavailable) {
		return "Background removal is not available right now."
	}
	return "Could not remove background. Please try again."
}

// UserMessage returns the user-facing text for err, or a generic message
func UserMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	switch {
	case errors.Is(err, ErrNoImage):
		return "Upload a logo before exporting."
	case errors.Is(err, ErrStaleExport):
		return "A newer export replaced this one."
	case errors.Is(err, ErrInvalidColor):
		return "Colors must be hex values like #112233."
	}
	return "Something went wrong. Please try again."
}
