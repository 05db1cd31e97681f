package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrorRecordNotFound      = errors.New("record not found")
	ErrScheduleNotConfigured = errors.New("schedule not configured")
	ErrSessionNotFound       = errors.New("reconciliation session not found or expired")
)

// ConfigurationError reports an invalid or missing schedule field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid schedule configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid schedule configuration: %s %s", e.Field, e.Reason)
}

// ArchiveIOError reports a failure writing or reading a snapshot or archive file.
type ArchiveIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *ArchiveIOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("archive %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("archive %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ArchiveIOError) Unwrap() error { return e.Err }

// DeliveryError reports a mail collaborator failure.
type DeliveryError struct {
	Recipients []string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("report delivery to %d recipient(s) failed: %v", len(e.Recipients), e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ReconciliationGateError is returned when Apply runs while selections are still unset.
type ReconciliationGateError struct {
	Unresolved int
}

func (e *ReconciliationGateError) Error() string {
	return fmt.Sprintf("reconciliation not ready: %d conflict(s) unresolved", e.Unresolved)
}

// PartialCommitError lists the collections whose writes failed during Apply.
// Collections not listed were committed.
type PartialCommitError struct {
	Failed    map[string]error
	Committed []string
}

func (e *PartialCommitError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failed[name]))
	}
	return fmt.Sprintf("partial commit (%d committed, %d failed): %s", len(e.Committed), len(e.Failed), strings.Join(parts, "; "))
}

func (e *PartialCommitError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		out = append(out, err)
	}
	return out
}
