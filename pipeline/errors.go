package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrMissingImage  = errors.New("no image supplied")
	ErrRender        = errors.New("annotation failed")
	ErrDetectTimeout = errors.New("detection timed out")
)

type Stage string

const (
	StageDecode Stage = "decode"
	StageDetect Stage = "detect"
	StageFilter Stage = "filter"
	StageRender Stage = "render"
	StageEncode Stage = "encode"
)

// StageError records the pipeline stage that aborted a request.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
