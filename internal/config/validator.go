package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/DeHby/workspace/internal/branch"
	"github.com/DeHby/workspace/internal/logging"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // the config field path (e.g. "branch.max_workers")
	Value   any    // the invalid value
	Message string // human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the Config for invalid values and returns all validation
// errors found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	b := c.Branch
	if b.CPUMultiple.Enabled {
		if b.CPUMultiple.Min < 0 {
			errs = append(errs, ValidationError{
				Field:   "branch.cpu_multiple.min",
				Value:   b.CPUMultiple.Min,
				Message: "must not be negative",
			})
		}
		if b.CPUMultiple.Max <= 0 {
			errs = append(errs, ValidationError{
				Field:   "branch.cpu_multiple.max",
				Value:   b.CPUMultiple.Max,
				Message: "must be positive",
			})
		}
		if b.CPUMultiple.Max < b.CPUMultiple.Min {
			errs = append(errs, ValidationError{
				Field:   "branch.cpu_multiple.max",
				Value:   b.CPUMultiple.Max,
				Message: "must not be below branch.cpu_multiple.min",
			})
		}
	} else {
		if b.MinWorkers < 0 {
			errs = append(errs, ValidationError{
				Field:   "branch.min_workers",
				Value:   b.MinWorkers,
				Message: "must not be negative",
			})
		}
		if b.MaxWorkers < 1 {
			errs = append(errs, ValidationError{
				Field:   "branch.max_workers",
				Value:   b.MaxWorkers,
				Message: "must be at least 1",
			})
		}
		if b.MaxWorkers < b.MinWorkers {
			errs = append(errs, ValidationError{
				Field:   "branch.max_workers",
				Value:   b.MaxWorkers,
				Message: "must not be below branch.min_workers",
			})
		}
	}

	if _, err := branch.ParseWaitStrategy(b.WaitStrategy); err != nil {
		errs = append(errs, ValidationError{
			Field:   "branch.wait_strategy",
			Value:   b.WaitStrategy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(branch.ValidWaitStrategies(), ", ")),
		})
	}

	if b.IdleTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "branch.idle_timeout_ms",
			Value:   b.IdleTimeoutMs,
			Message: "must not be negative",
		})
	}
	if b.TickIntervalMs < 1 {
		errs = append(errs, ValidationError{
			Field:   "branch.tick_interval_ms",
			Value:   b.TickIntervalMs,
			Message: "must be at least 1",
		})
	}

	level := strings.ToUpper(c.Logging.Level)
	if !slices.Contains(logging.ValidLevels(), level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}

	return errs
}
