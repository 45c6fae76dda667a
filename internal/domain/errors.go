package domain

import "errors"

// ErrNotFound is returned by repositories when no row matched.
// Services map it to their own, more specific sentinels.
var ErrNotFound = errors.New("not found")
