// Package errors provides structured error types for better observability
// and programmatic error handling across the application.
//
// Every failure that leaves the fleet-state core carries one of the codes
// defined here, so commands can tell a missing environment variable from an
// unreachable inventory or an unknown needle.
//
// Example usage:
//
//	err := errors.WrapWithContext(
//	    errors.ErrCodeUnavailable,
//	    "failed to list nomad allocations",
//	    cause,
//	    map[string]any{
//	        "source": "nomad-allocations",
//	        "domain": domain,
//	    },
//	)
//
//	if errors.IsCode(err, errors.ErrCodeNotFound) {
//	    // needle did not match anything
//	}
package errors
