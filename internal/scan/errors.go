package scan

import "fmt"

// ConfigError reports an inconsistent loop configuration: bad channel counts,
// malformed tap declarations, or a mismatch between the configuration and the
// inner graph's slot structure. Detected at loop construction, never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "scan: invalid configuration: " + e.Reason
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// TypeMismatchError reports an element-type disagreement between a supplied
// value and the inner slot it feeds, or between a tap-read slot and the
// corresponding tap-write slot. Detected before any iteration runs.
type TypeMismatchError struct {
	What string
	Have string
	Want string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("scan: %s has dtype %s, want %s", e.What, e.Have, e.Want)
}

// LengthError reports a sequence or trip-count argument shorter than the
// required number of steps. Detected at loop start, before any iteration.
type LengthError struct {
	What     string
	Length   int
	Required int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("scan: %s is shorter than the required number of steps: have %d, need %d",
		e.What, e.Length, e.Required)
}

// StepError wraps a failure raised inside a single invocation of the inner
// step function. The loop is aborted; buffers written by earlier iterations
// are left intact for diagnostics, but the loop's result is failed.
type StepError struct {
	Step int
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("scan: inner step failed at iteration %d: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
