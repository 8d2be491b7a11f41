package deploy

import "fmt"

// PreconditionError aborts a run before any host mutation.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// DependencyInstallError is a fatal dependency installation failure.
// There is no partial-dependency retry; the recovery is a re-run.
type DependencyInstallError struct {
	Err error
}

func (e *DependencyInstallError) Error() string {
	return "dependency install: " + e.Err.Error()
}

func (e *DependencyInstallError) Unwrap() error { return e.Err }

// ConfigurationRenderError is a fatal artifact or proxy rendering failure:
// missing required input or a broken cross-reference.
type ConfigurationRenderError struct {
	Err error
}

func (e *ConfigurationRenderError) Error() string {
	return "configuration render: " + e.Err.Error()
}

func (e *ConfigurationRenderError) Unwrap() error { return e.Err }

// SupervisorStartError is fatal for the current run; services already
// started keep running.
type SupervisorStartError struct {
	Err error
}

func (e *SupervisorStartError) Error() string {
	return "supervisor start: " + e.Err.Error()
}

func (e *SupervisorStartError) Unwrap() error { return e.Err }

func fatal(step string, err error) error {
	return fmt.Errorf("step %s: %w", step, err)
}
