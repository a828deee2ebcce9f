package repository

import "errors"

// ErrDuplicate is returned when an insert violates a unique index. It requires
// the gorm session to be opened with TranslateError enabled.
var ErrDuplicate = errors.New("duplicate record")
