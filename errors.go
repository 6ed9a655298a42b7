// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package hstore

import (
	"strings"

	"github.com/pkg/errors"
)

// Error is a constant error type so that sentinels can be compared with
// errors.Cause.
type Error string

func (e Error) Error() string { return string(e) }

// Configuration errors.
const (
	ErrBadSeparator   = Error("keypath separator cannot be empty nor contain '" + HierarchySeparator + "'")
	ErrUnknownGroup   = Error("unknown group")
	ErrRegistrySealed = Error("registry is sealed")
	ErrTopicNotFound  = Error("topic not found in keypaths")
)

// Lifecycle errors. A command rejected with one of these has not changed the
// Router's state.
const (
	ErrAlreadyRecording  = Error("start requested while already recording")
	ErrNotRecording      = Error("stop requested while not recording")
	ErrMissingID         = Error("start command requires an id")
	ErrBadID             = Error("invalid recording id")
	ErrFilenameCollision = Error("filename collision")
)

// Storage errors.
const (
	ErrCannotOpen      = Error("cannot open file (is it open already?)")
	ErrClosed          = Error("store is closed")
	ErrMismatch        = Error("shape/type mismatch")
	ErrUnsupportedType = Error("unsupported type for dataset")
	ErrNotMaterialized = Error("dataset has not been written yet")
)

// FieldError is returned when a single field of a record could not be
// appended to its dataset.
type FieldError struct {
	Group string
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return "group '" + e.Group + "', field '" + e.Field + "': " + e.Err.Error()
}

// Cause implements the causer interface used by errors.Cause.
func (e *FieldError) Cause() error { return e.Err }

// Unwrap supports the standard library errors package.
func (e *FieldError) Unwrap() error { return e.Err }

// FieldErrors collects the failures of the individual fields of one record.
// Fields are independent, so a FieldErrors value never means the other
// fields of the record were lost.
type FieldErrors []*FieldError

func (errs FieldErrors) Error() string {
	errstrings := make([]string, len(errs))
	for i, err := range errs {
		errstrings[i] = err.Error()
	}
	return strings.Join(errstrings, "; ")
}

// IsCause reports whether the cause of err, or of any FieldError contained
// in it, is target.
func IsCause(err error, target error) bool {
	if err == nil {
		return false
	}
	if ferrs, ok := err.(FieldErrors); ok {
		for _, ferr := range ferrs {
			if errors.Cause(ferr) == target {
				return true
			}
		}
		return false
	}
	return errors.Cause(err) == target
}
