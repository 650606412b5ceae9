package repositories

import "errors"

// ErrNotFound is returned by repository lookups when no row matches.
// Callers distinguish "absent" from real database failures with errors.Is.
var ErrNotFound = errors.New("not found")
