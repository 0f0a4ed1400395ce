package provision

import (
	"strings"

	"github.com/keithlinneman/edgesite/internal/cloudflare"
	"github.com/keithlinneman/edgesite/internal/manifest"
)

// ErrEmptyManifest is manifest.ErrNoFilesFound so either name matches with
// errors.Is.
var ErrEmptyManifest = manifest.ErrNoFilesFound

// StepError is a fatal failure of one remote step. Messages are the
// platform's own, unedited.
type StepError struct {
	Step     string
	Messages []string
	// Transport is set when no usable response arrived
	Transport bool
	Err       error
}

func (e *StepError) Error() string {
	return e.Step + ": " + strings.Join(e.Messages, "; ")
}

func (e *StepError) Unwrap() error { return e.Err }

func stepError(step string, res cloudflare.Result) *StepError {
	msgs := res.Errors
	if len(msgs) == 0 {
		msgs = []string{res.Message()}
	}
	return &StepError{
		Step:      step,
		Messages:  msgs,
		Transport: res.Err != nil && res.Status == 0,
		Err:       res.Err,
	}
}
