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
	"io"
	"time"
)

// Message is one record delivered by a Source: the topic it was published on
// and the decoded, not yet parsed, data.
type Message struct {
	Topic string
	Data  interface{}
}

// Source is the interface for getting messages one at a time. Record returns
// io.EOF when the source is exhausted or closed.
type Source interface {
	Record() (Message, error)
}

// NamedReadCloser is an io.ReadCloser which knows the name of what it reads.
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
}

// RawSource hands out readers (files, objects) one after the other. It
// returns io.EOF when there are no more.
type RawSource interface {
	NextReader() (NamedReadCloser, error)
}

// Parser turns the data of a Message into a Document.
type Parser interface {
	Parse(data interface{}) (Document, error)
}

// ParserFunc lets a bare function be used as a Parser, similar to
// http.HandlerFunc.
type ParserFunc func(data interface{}) (Document, error)

// Parse calls the wrapped function.
func (f ParserFunc) Parse(data interface{}) (Document, error) { return f(data) }

// Store is an open recording file.
type Store interface {
	// Append adds val as a new row of the dataset named by field inside
	// group. The first value appended to a dataset fixes its type and shape.
	Append(group, field string, val Value) error
	Close() error
}

// OpenFunc opens the Store at path, creating it if it does not exist.
type OpenFunc func(path string) (Store, error)

// Recording states.
const (
	StateRecording = "recording"
	StateFinalized = "finalized"
	StateFailed    = "failed"
)

// Recording describes one session in a Catalog.
type Recording struct {
	ID        string    `json:"id"`
	TempPath  string    `json:"temp_path"`
	FinalPath string    `json:"final_path"`
	State     string    `json:"state"`
	Started   time.Time `json:"started"`
	Stopped   time.Time `json:"stopped"` // zero while the session runs
	Error     string    `json:"error,omitempty"`
}

// Catalog keeps track of recording sessions.
type Catalog interface {
	// Recording returns the session with the given id, and false if it is
	// unknown.
	Recording(id string) (Recording, bool, error)
	Put(rec Recording) error
	// Recordings returns every known session ordered by id.
	Recordings() ([]Recording, error)
	Close() error
}

// Finalizer is notified after a recording has been closed and renamed to its
// final name.
type Finalizer interface {
	Finalize(rec Recording) error
}

// FinalizerFunc lets a bare function be used as a Finalizer.
type FinalizerFunc func(rec Recording) error

// Finalize calls the wrapped function.
func (f FinalizerFunc) Finalize(rec Recording) error { return f(rec) }
