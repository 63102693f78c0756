package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when fewer than two measurements are available.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNotDecaying is returned when the window is flat or rising.
	ErrNotDecaying = errors.New("concentration not decaying")
	// ErrFitFailed matches every FitFailedError.
	ErrFitFailed = errors.New("fit failed")
	// ErrRoomNotFound is returned for rooms missing from the registry.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidRoom is returned for room parameters the engine cannot score.
	ErrInvalidRoom = errors.New("invalid room")
)

// FitFailedError carries the numerical cause of a failed decay fit.
type FitFailedError struct {
	Err error
}

func (e *FitFailedError) Error() string {
	if e.Err == nil {
		return ErrFitFailed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrFitFailed, e.Err)
}

func (e *FitFailedError) Unwrap() error {
	return e.Err
}

func (e *FitFailedError) Is(target error) bool {
	return target == ErrFitFailed
}

// Reason is the tag attached to a calculation that produced no result.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonInsufficientData Reason = "insufficient_data"
	ReasonNotDecaying      Reason = "not_decaying"
	ReasonFitFailed        Reason = "fit_failed"
)

// ReasonOf maps a calculation error to its no-result tag.
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrInsufficientData):
		return ReasonInsufficientData
	case errors.Is(err, ErrNotDecaying):
		return ReasonNotDecaying
	case errors.Is(err, ErrFitFailed):
		return ReasonFitFailed
	default:
		return ReasonNone
	}
}
