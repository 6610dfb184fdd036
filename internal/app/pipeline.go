package app

import (
	"context"
	stdErrors "errors"

	apperrors "assetsync/internal/errors"
	"assetsync/internal/logger"
	"assetsync/internal/ui"
)

// InstallStep describes a single phase of an operation.
type InstallStep struct {
	Name      string
	Operation string
	Category  apperrors.ErrorCategory
	// Spinner shows a spinner while the step runs. Steps that drive the
	// progress line leave it off.
	Spinner bool
	Fn      func(ctx context.Context) error
}

// StepErrorHandler handles step failures.
type StepErrorHandler func(step InstallStep, err error) error

// Pipeline executes steps sequentially.
type Pipeline struct {
	steps   []InstallStep
	console *ui.Console
	logger  logger.Logger
	onError StepErrorHandler
}

// NewPipeline constructs a new pipeline. console may be nil.
func NewPipeline(console *ui.Console, log logger.Logger, steps []InstallStep, handler StepErrorHandler) *Pipeline {
	return &Pipeline{
		steps:   steps,
		console: console,
		logger:  log,
		onError: handler,
	}
}

// Execute runs through all configured steps, stopping at the first failure
// or when ctx is cancelled.
func (p *Pipeline) Execute(ctx context.Context) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.logger != nil {
			p.logger.DebugContext(ctx, "executing step", logger.String("step", step.Name))
		}
		spinner := step.Spinner && p.console != nil
		if spinner {
			p.console.StartProgress(step.Name)
		}
		if err := step.Fn(ctx); err != nil {
			if spinner {
				p.console.FailProgress(step.Name)
			}
			if p.onError != nil {
				return p.onError(step, err)
			}
			return err
		}
		if spinner {
			p.console.StopProgress(step.Name)
		}
	}

	return nil
}

// wrapStepError tags err with the step that produced it.
func wrapStepError(step InstallStep, err error) error {
	if appErr, ok := apperrors.As(err); ok {
		if appErr.Operation == "" {
			appErr.WithOperation(step.Operation)
		}
		return appErr.WithField("step", step.Name)
	}
	if stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.New(step.Category, codeForCategory(step.Category), step.Name+" failed", err).
		WithModule(module).
		WithOperation(step.Operation).
		WithField("step", step.Name)
}

func codeForCategory(category apperrors.ErrorCategory) string {
	switch category {
	case apperrors.ErrCategoryNetwork:
		return apperrors.CodeNetworkGeneric
	case apperrors.ErrCategoryConfig:
		return apperrors.CodeConfigGeneric
	case apperrors.ErrCategoryValidation:
		return apperrors.CodeValidationGeneric
	case apperrors.ErrCategoryDatabase:
		return apperrors.CodeDatabaseGeneric
	default:
		return apperrors.CodeSystemGeneric
	}
}
