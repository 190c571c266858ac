package signing

import (
	"errors"
	"fmt"

	"github.com/jwalitptl/pathology-report-api/internal/service/artifact"
	"github.com/jwalitptl/pathology-report-api/internal/service/imaging"
	"github.com/jwalitptl/pathology-report-api/internal/service/render"
)

var (
	ErrNotFound       = errors.New("patient not found")
	ErrSignInProgress = errors.New("signing already in progress for this patient")
)

// Re-exported so callers can match stage failures without importing every
// stage package.
var (
	ErrDecode        = imaging.ErrDecode
	ErrRenderTimeout = render.ErrRenderTimeout
	ErrRenderCrashed = render.ErrRenderCrashed
	ErrWrite         = artifact.ErrWrite
)

type Stage string

const (
	StageMarkSigned Stage = "mark_signed"
	StageLoad       Stage = "load"
	StageImages     Stage = "normalize_images"
	StageCompose    Stage = "compose"
	StageRender     Stage = "render"
	StageStore      Stage = "store"
)

// Failure kinds reported to callers.
const (
	KindImageProcessingFailed = "ImageProcessingFailed"
	KindRenderFailed          = "RenderFailed"
	KindStorageFailed         = "StorageFailed"
	KindInternal              = "Internal"
)

// StageError records which pipeline stage failed. Unwrap exposes the cause so
// errors.Is still matches ErrDecode, ErrRenderTimeout and the rest.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s stage: %v", e.Kind(), e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Kind() string {
	switch e.Stage {
	case StageImages:
		return KindImageProcessingFailed
	case StageCompose, StageRender:
		return KindRenderFailed
	case StageStore:
		return KindStorageFailed
	default:
		return KindInternal
	}
}
