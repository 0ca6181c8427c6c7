// Package errors provides centralized error definitions and error handling
// utilities for the teamfabric codebase. It defines domain-specific errors,
// semantic error types with observable messages, and classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - StoreError: errors from the file-backed team store
//   - LedgerError: errors from the credit ledger
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input (name/id regex violations)
//   - NotFoundError: team or task not found
//   - CorruptedError: a file failed schema validation (carries the path)
//   - PathTraversalError: a resolved path escaped its expected parent
//   - TransitionError: an illegal phase transition
//   - LockTimeoutError: lock acquisition deadline exceeded
//
// Several semantic errors render messages that agents pattern-match on, so
// their Error() output is exact and stable:
//
//	Team name may only contain letters, numbers, hyphens, and underscores.
//	Task ID must be numeric.
//	Cannot transition from "planning" to "alpha". Only forward single-step transitions are allowed.
//	Timed out waiting for lock on /path/to/file
//	Team "alpha" not found
//	Task "3" not found in team "alpha"
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewTeamNameError()
//	err := errors.NewStoreError("write config", cause).WithTeam("alpha")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrLockTimeout) { ... }
//
//	var corrupted *errors.CorruptedError
//	if errors.As(err, &corrupted) { log.Warn("bad file", "path", corrupted.Path) }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Store-related sentinel errors
var (
	// ErrTeamNotFound indicates that a team could not be found.
	ErrTeamNotFound = New("team not found")
	// ErrTeamExists indicates that a team with the same name already exists.
	ErrTeamExists = New("team already exists")
	// ErrTaskNotFound indicates that a task could not be found.
	ErrTaskNotFound = New("task not found")
	// ErrTaskExists indicates that a task with the same id already exists.
	ErrTaskExists = New("task already exists")
	// ErrMemberExists indicates a duplicate member agentId or name.
	ErrMemberExists = New("member already exists")
	// ErrMemberNotFound indicates that a member could not be found.
	ErrMemberNotFound = New("member not found")
	// ErrCorrupted indicates a file that failed schema validation.
	ErrCorrupted = New("data corrupted")
	// ErrPathTraversal indicates a resolved path escaped its expected parent.
	ErrPathTraversal = New("path escapes expected parent")
)

// Lifecycle sentinel errors
var (
	// ErrInvalidTransition indicates a backward or skipping phase transition.
	ErrInvalidTransition = New("invalid phase transition")
	// ErrToolNotAllowed indicates that a tool is gated until a later phase.
	ErrToolNotAllowed = New("tool not allowed in current phase")
)

// Lock sentinel errors
var (
	// ErrLockTimeout indicates that lock acquisition hit its deadline.
	ErrLockTimeout = New("lock acquisition timed out")
)

// Ledger sentinel errors
var (
	// ErrWeeklyLimitReached indicates the subscriber's weekly credit cap is spent.
	ErrWeeklyLimitReached = New("weekly credit limit reached")
	// ErrBlockExhausted indicates the active credit block has no balance left.
	ErrBlockExhausted = New("credit block exhausted")
	// ErrNegativeBalance indicates a grant whose credits are already spent.
	ErrNegativeBalance = New("grant balance is negative")
	// ErrNoActiveGrants indicates a principal with nothing to consume from.
	ErrNoActiveGrants = New("no active grants")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// FabricError is the base interface for all teamfabric errors.
// It extends the standard error interface with methods for
// error handling and classification.
type FabricError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users (or, here, to agents).
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// StoreError represents errors from the file-backed team store.
//
// Example:
//
//	err := errors.NewStoreError("write config", cause).WithTeam("alpha")
//	fmt.Println(err) // "store error [team=alpha]: write config: <cause>"
type StoreError struct {
	baseError
	Team string
	Path string
}

// NewStoreError creates a new StoreError.
func NewStoreError(message string, cause error) *StoreError {
	return &StoreError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
	}
}

// WithTeam adds a team name to the error context.
func (e *StoreError) WithTeam(team string) *StoreError {
	e.Team = team
	return e
}

// WithPath adds a file path to the error context.
func (e *StoreError) WithPath(path string) *StoreError {
	e.Path = path
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *StoreError) WithRetryable(r bool) *StoreError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *StoreError) Error() string {
	var parts []string
	if e.Team != "" {
		parts = append(parts, fmt.Sprintf("team=%s", e.Team))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	prefix := "store error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("store error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StoreError) Is(target error) bool {
	if _, ok := target.(*StoreError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// LedgerError represents errors from the credit ledger.
//
// Example:
//
//	err := errors.NewLedgerError("insert grant", cause).
//		WithPrincipal("user:42").WithOperationID("block-abc").WithRetryable(true)
type LedgerError struct {
	baseError
	Principal   string
	OperationID string
}

// NewLedgerError creates a new LedgerError.
func NewLedgerError(message string, cause error) *LedgerError {
	return &LedgerError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
	}
}

// WithPrincipal adds a principal key ("user:<id>" or "org:<id>") to the error context.
func (e *LedgerError) WithPrincipal(p string) *LedgerError {
	e.Principal = p
	return e
}

// WithOperationID adds an operation id to the error context.
func (e *LedgerError) WithOperationID(id string) *LedgerError {
	e.OperationID = id
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *LedgerError) WithRetryable(r bool) *LedgerError {
	e.retryable = r
	return e
}

// WithSeverity sets the error severity.
func (e *LedgerError) WithSeverity(s Severity) *LedgerError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *LedgerError) Error() string {
	var parts []string
	if e.Principal != "" {
		parts = append(parts, fmt.Sprintf("principal=%s", e.Principal))
	}
	if e.OperationID != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.OperationID))
	}

	prefix := "ledger error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("ledger error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *LedgerError) Is(target error) bool {
	if _, ok := target.(*LedgerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input. Its Error() output is the bare
// message because agents pattern-match on the canonical validation strings.
//
// Example:
//
//	err := errors.NewTeamNameError()
//	fmt.Println(err) // "Team name may only contain letters, numbers, hyphens, and underscores."
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError with an arbitrary message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// NewTeamNameError returns the canonical team-name validation error.
func NewTeamNameError() *ValidationError {
	return NewValidationError("Team name may only contain letters, numbers, hyphens, and underscores.").
		WithField("name")
}

// NewMemberNameError returns the canonical member-name validation error.
func NewMemberNameError() *ValidationError {
	return NewValidationError("Member name may only contain letters, numbers, hyphens, and underscores.").
		WithField("member.name")
}

// NewTaskIDError returns the canonical task-id validation error.
func NewTaskIDError() *ValidationError {
	return NewValidationError("Task ID must be numeric.").WithField("id")
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the bare validation message (plus the cause, if any).
// Field and Value are context for programmatic inspection, not display.
func (e *ValidationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// NotFoundError represents a team or task that does not exist where a
// mutation requires one. Read paths return nil instead of this error.
//
// Example:
//
//	err := errors.NewTeamNotFoundError("alpha")
//	fmt.Println(err) // `Team "alpha" not found`
type NotFoundError struct {
	baseError
	Team     string
	TaskID   string
	sentinel error
}

// NewTeamNotFoundError creates the canonical team-not-found error.
func NewTeamNotFoundError(team string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("Team %q not found", team),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Team:     team,
		sentinel: ErrTeamNotFound,
	}
}

// NewTaskNotFoundError creates the canonical task-not-found error.
func NewTaskNotFoundError(team, taskID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("Task %q not found in team %q", taskID, team),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Team:     team,
		TaskID:   taskID,
		sentinel: ErrTaskNotFound,
	}
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if e.sentinel != nil && target == e.sentinel {
		return true
	}
	return e.baseError.Is(target)
}

// CorruptedError represents a file that failed schema validation after any
// applicable auto-repair. It always carries the offending path.
type CorruptedError struct {
	baseError
	Kind string // "team config", "task", "inbox", "message"
	Path string
}

// NewCorruptedError creates a new CorruptedError.
func NewCorruptedError(kind, path string, cause error) *CorruptedError {
	return &CorruptedError{
		baseError: baseError{
			message:    fmt.Sprintf("corrupted %s at %s", kind, path),
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
		Kind: kind,
		Path: path,
	}
}

// Is checks if this error matches the target.
func (e *CorruptedError) Is(target error) bool {
	if _, ok := target.(*CorruptedError); ok {
		return true
	}
	if target == ErrCorrupted {
		return true
	}
	return e.baseError.Is(target)
}

// PathTraversalError represents a resolved path that escaped its expected
// parent directory after normalization.
type PathTraversalError struct {
	baseError
	Path   string
	Parent string
}

// NewPathTraversalError creates a new PathTraversalError.
func NewPathTraversalError(path, parent string) *PathTraversalError {
	return &PathTraversalError{
		baseError: baseError{
			message:    fmt.Sprintf("path %q escapes %q", path, parent),
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: false,
		},
		Path:   path,
		Parent: parent,
	}
}

// Is checks if this error matches the target.
func (e *PathTraversalError) Is(target error) bool {
	if _, ok := target.(*PathTraversalError); ok {
		return true
	}
	if target == ErrPathTraversal {
		return true
	}
	return e.baseError.Is(target)
}

// TransitionError represents a backward or skipping phase transition.
// Its message is exact; agents read it back verbatim.
type TransitionError struct {
	baseError
	From string
	To   string
}

// NewTransitionError creates the canonical transition error.
func NewTransitionError(from, to string) *TransitionError {
	return &TransitionError{
		baseError: baseError{
			message: fmt.Sprintf("Cannot transition from %q to %q. Only forward single-step transitions are allowed.",
				from, to),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		From: from,
		To:   to,
	}
}

// Is checks if this error matches the target.
func (e *TransitionError) Is(target error) bool {
	if _, ok := target.(*TransitionError); ok {
		return true
	}
	if target == ErrInvalidTransition {
		return true
	}
	return e.baseError.Is(target)
}

// LockTimeoutError represents a lock acquisition that hit its deadline.
// Lock timeouts are retryable: the holder usually releases shortly after.
type LockTimeoutError struct {
	baseError
	Path    string
	Timeout time.Duration
}

// NewLockTimeoutError creates the canonical lock-timeout error.
func NewLockTimeoutError(path string, timeout time.Duration) *LockTimeoutError {
	return &LockTimeoutError{
		baseError: baseError{
			message:    "Timed out waiting for lock on " + path,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Path:    path,
		Timeout: timeout,
	}
}

// Is checks if this error matches the target.
func (e *LockTimeoutError) Is(target error) bool {
	if _, ok := target.(*LockTimeoutError); ok {
		return true
	}
	if target == ErrLockTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// GateError represents a tool invocation blocked by the phase gating table.
type GateError struct {
	baseError
	Tool         string
	CurrentPhase string
	MinimumPhase string
}

// NewGateError creates a new GateError.
func NewGateError(tool, current, minimum string) *GateError {
	return &GateError{
		baseError: baseError{
			message: fmt.Sprintf("tool %q requires phase %q or later (team is in %q)",
				tool, minimum, current),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Tool:         tool,
		CurrentPhase: current,
		MinimumPhase: minimum,
	}
}

// Is checks if this error matches the target.
func (e *GateError) Is(target error) bool {
	if _, ok := target.(*GateError); ok {
		return true
	}
	if target == ErrToolNotAllowed {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing FabricError with IsRetryable() returning true
//   - Errors wrapping ErrLockTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var fabricErr FabricError
	if As(err, &fabricErr) {
		return fabricErr.IsRetryable()
	}

	return Is(err, ErrLockTimeout)
}

// IsUserFacing returns true if the error message is safe to surface to an
// agent verbatim.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var fabricErr FabricError
	if As(err, &fabricErr) {
		return fabricErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement FabricError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var fabricErr FabricError
	if As(err, &fabricErr) {
		return fabricErr.Severity()
	}

	return SeverityError
}

// IsValidation returns true if the error is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return As(err, &v)
}

// IsNotFound returns true if the error is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return As(err, &nf)
}

// IsCorrupted returns true if the error is (or wraps) a CorruptedError.
func IsCorrupted(err error) bool {
	var c *CorruptedError
	return As(err, &c)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with an additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "load config")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "load config for team %s", name)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
