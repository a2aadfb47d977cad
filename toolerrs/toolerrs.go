// Package toolerrs defines the error taxonomy shared by every component in
// the registry: manifest loading, executors, the chain index, and the
// scheduler all wrap failures in one of these categories so callers can
// branch with errors.As instead of matching on message text.
package toolerrs

import (
	"errors"
	"fmt"
)

// Category identifies which row of the error taxonomy an error belongs to.
type Category string

const (
	// Configuration covers missing endpoints, unsupported URI schemes, and
	// unsupported KDFs. Never retried.
	Configuration Category = "configuration"
	// NotFound covers unknown tool/module ids, missing manifests, and
	// unknown tasks. Never retried.
	NotFound Category = "not_found"
	// Validation covers schema failures, invalid status transitions, and
	// unknown manifest runtimes. Never retried.
	Validation Category = "validation"
	// Integrity covers digest mismatches, SS58 checksum failures, and
	// signature verification failures. Fails the invocation permanently;
	// the result must never be cached as a valid pointer.
	Integrity Category = "integrity"
	// Resource covers timeouts, oversized output, Wasm traps, sub-process
	// crashes, and missing ABI exports. Retried by the scheduler up to
	// max_retries with exponential backoff.
	Resource Category = "resource"
	// Transport covers JSON parse errors, malformed frames, and non-2xx
	// HTTP responses at the JSON-RPC gateway.
	Transport Category = "transport"
)

// Error is the concrete error type every package in this module returns for
// taxonomy-classified failures. Op names the failing operation (e.g.
// "manifest.Load", "executor.Invoke") so logs can be grepped by call site.
type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Category, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err under the given category and operation name. Returns nil if
// err is nil so callers can write `return toolerrs.New(...,err)` unguarded.
func New(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: category, Op: op, Err: err}
}

// Newf builds a new Error from a format string, bypassing the nil-err guard
// in New since there is no wrapped error to check.
func Newf(category Category, op, format string, args ...any) error {
	return &Error{Category: category, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err (or any error in its chain) is categorized as cat.
func Is(err error, cat Category) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Category == cat
}

// CategoryOf extracts the category of err, returning ok=false if err is not
// a classified Error.
func CategoryOf(err error) (cat Category, ok bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Category, true
}

// Retryable reports whether the scheduler should retry an invocation that
// failed with err. Only Resource errors are retryable per the propagation
// policy; everything else is surfaced immediately.
func Retryable(err error) bool {
	cat, ok := CategoryOf(err)
	return ok && cat == Resource
}
