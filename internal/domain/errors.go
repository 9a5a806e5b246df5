package domain

import "errors"

// Storage adapters report outcomes through this closed set; nil means the
// statement affected what it was supposed to.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)
