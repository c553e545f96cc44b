package cmd

import (
	"context"
	"errors"
	"strconv"

	"github.com/spiffcs/devexport/internal/apierr"
	"github.com/spiffcs/devexport/internal/model"
	"github.com/spiffcs/devexport/internal/pipeline"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitAborted     = 1
	ExitSkipped     = 2
	ExitAuth        = 3
	ExitInterrupted = 130
)

// ExitError carries a process exit code. Err is nil when the outcome has
// already been reported and only the code matters.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status " + strconv.Itoa(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode maps a run outcome to its process exit code.
func exitCode(ctx context.Context, summary model.RunSummary, err error) int {
	switch {
	case err == nil && summary.HasSkipped():
		return ExitSkipped
	case err == nil:
		return ExitOK
	case errors.Is(err, pipeline.ErrAuth), apierr.IsAuth(err):
		return ExitAuth
	case errors.Is(err, context.Canceled), ctx.Err() != nil:
		return ExitInterrupted
	default:
		return ExitAborted
	}
}

// exitError wraps err with the code for the outcome. The run summary has
// already been printed, so completed runs carry no message.
func exitError(ctx context.Context, summary model.RunSummary, err error) error {
	code := exitCode(ctx, summary, err)
	if code == ExitOK {
		return nil
	}
	if err == nil {
		return &ExitError{Code: code}
	}
	return &ExitError{Code: code, Err: err}
}
