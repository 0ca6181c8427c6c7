package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError is a single invalid config value.
type ValidationError struct {
	Field   string // dotted key path, e.g. "lock.stale_ms"
	Value   any
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid value found in one pass.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLedgerDrivers returns the accepted ledger.driver values.
func ValidLedgerDrivers() []string {
	return []string{"sqlite", "postgres"}
}

// Validate checks every field and returns all failures rather than
// stopping at the first.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Lock.StaleMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "lock.stale_ms",
			Value:   c.Lock.StaleMs,
			Message: "must be positive",
		})
	}
	if c.Lock.PollMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "lock.poll_ms",
			Value:   c.Lock.PollMs,
			Message: "must be positive",
		})
	}
	if c.Lock.TimeoutMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "lock.timeout_ms",
			Value:   c.Lock.TimeoutMs,
			Message: "must be positive",
		})
	}
	if c.Lock.PollMs > c.Lock.TimeoutMs {
		errs = append(errs, ValidationError{
			Field:   "lock.poll_ms",
			Value:   c.Lock.PollMs,
			Message: "must not exceed lock.timeout_ms",
		})
	}

	if c.Maintenance.PruneAgeHours < 0 {
		errs = append(errs, ValidationError{
			Field:   "maintenance.prune_age_hours",
			Value:   c.Maintenance.PruneAgeHours,
			Message: "must not be negative",
		})
	}

	if !slices.Contains(ValidLedgerDrivers(), c.Ledger.Driver) {
		errs = append(errs, ValidationError{
			Field:   "ledger.driver",
			Value:   c.Ledger.Driver,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLedgerDrivers(), ", ")),
		})
	}
	if c.Ledger.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "ledger.max_retries",
			Value:   c.Ledger.MaxRetries,
			Message: "must not be negative",
		})
	}

	if c.Watch.DebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.debounce_ms",
			Value:   c.Watch.DebounceMs,
			Message: "must not be negative",
		})
	}

	return errs
}
