package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the part of a run that failed.
type Stage string

const (
	StageParse     Stage = "parse"
	StageAggregate Stage = "aggregate"
	StageGenerate  Stage = "generate"
	StageDecode    Stage = "decode"
)

// Boundary reports whether the stage is on the text-generation side, as
// opposed to a problem with the uploaded data.
func (s Stage) Boundary() bool {
	return s == StageGenerate || s == StageDecode
}

// StageError labels an error with the stage it came from.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage an error was labelled with.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
