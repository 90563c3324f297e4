// SPDX-License-Identifier: MIT

package tracker

import (
	"errors"
	"fmt"
)

// ErrUnauthorized rejects a payload whose source is unknown, disabled, or
// arriving through a bridge the endpoint does not accept.
var ErrUnauthorized = errors.New("unauthorized event source")

// ErrInvalidArgument rejects a static-profile request without a profile id.
var ErrInvalidArgument = errors.New("static profile id requires profile.id")

// FieldTypeConflictError surfaces a persistence failure to the caller with
// the per-row details the storage backend returned.
type FieldTypeConflictError struct {
	Message string
	Rows    []string
	Err     error
}

func (e *FieldTypeConflictError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *FieldTypeConflictError) Unwrap() error {
	return e.Err
}

// TransientError reports a dependency failure worth retrying at the caller,
// such as an unreachable lock store.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient dependency failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
