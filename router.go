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
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Lifecycle command vocabulary. Commands travel in the document stream.
const (
	CommandKey   = "command"
	IDKey        = "id"
	CommandStart = "start"
	CommandStop  = "stop"
)

// File naming. An active recording is written to
// <folder>/<TempMarker><FilePrefix><id><ext> and renamed to
// <folder>/<FilePrefix><id><ext> once it has been closed successfully.
const (
	TempMarker        = "_"
	FilePrefix        = "acq_"
	DefaultExtension  = ".hst"
	DefaultFolderPath = "./fallback_data"
)

// Agent status values reported by Status.
const (
	AgentRecording = "recording"
	AgentIdle      = "idle"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Status is a snapshot of the Router's session state.
type Status struct {
	AgentStatus string     `json:"agent_status"`
	ID          string     `json:"id,omitempty"`
	Filename    string     `json:"filename,omitempty"`
	Started     *time.Time `json:"started,omitempty"`
}

// Router is the entry point for every (topic, document) pair. It handles the
// start/stop recording protocol and, while a recording is active, appends the
// configured fields of each document to the open Store.
//
// Route, Close and Status are serialized, so Status may be called from
// another goroutine. Records are still expected to arrive from a single
// goroutine; see Ingester.
type Router struct {
	mu sync.Mutex

	reg             *Registry
	open            OpenFunc
	dir             string
	ext             string
	skipDefaultOnly map[string]struct{}
	catalog         Catalog
	finalizers      []Finalizer
	log             Logger
	stats           Statter
	now             func() time.Time

	store     Store
	recording bool
	filename  string
	current   Recording
}

// RouterOption is a functional option for NewRouter.
type RouterOption func(r *Router)

// OptRouterDir sets the folder recordings are written to.
func OptRouterDir(dir string) RouterOption {
	return func(r *Router) {
		r.dir = dir
	}
}

// OptRouterExtension sets the file extension of recordings.
func OptRouterExtension(ext string) RouterOption {
	return func(r *Router) {
		r.ext = ext
	}
}

// OptRouterSkipDefaultOnly replaces the groups for which records holding
// nothing but reserved fields are skipped.
func OptRouterSkipDefaultOnly(groups ...string) RouterOption {
	return func(r *Router) {
		r.skipDefaultOnly = make(map[string]struct{}, len(groups))
		for _, g := range groups {
			r.skipDefaultOnly[g] = struct{}{}
		}
	}
}

// OptRouterCatalog makes the Router record every session in c.
func OptRouterCatalog(c Catalog) RouterOption {
	return func(r *Router) {
		r.catalog = c
	}
}

// OptRouterFinalizers adds Finalizers which run after each successful stop.
func OptRouterFinalizers(fs ...Finalizer) RouterOption {
	return func(r *Router) {
		r.finalizers = append(r.finalizers, fs...)
	}
}

// OptRouterLogger sets the logger.
func OptRouterLogger(l Logger) RouterOption {
	return func(r *Router) {
		r.log = l
	}
}

// OptRouterStatter sets the stats collector.
func OptRouterStatter(s Statter) RouterOption {
	return func(r *Router) {
		r.stats = s
	}
}

// NewRouter creates a Router over reg which opens stores with open. The
// registry is sealed; it can no longer be modified.
func NewRouter(reg *Registry, open OpenFunc, opts ...RouterOption) (*Router, error) {
	if reg == nil {
		return nil, errors.New("router needs a registry")
	}
	if open == nil {
		return nil, errors.New("router needs an OpenFunc")
	}
	r := &Router{
		reg:             reg,
		open:            open,
		dir:             DefaultFolderPath,
		ext:             DefaultExtension,
		skipDefaultOnly: map[string]struct{}{"coordinator": {}},
		log:             NopLogger{},
		stats:           NopStatter{},
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	reg.Seal()
	return r, nil
}

// Registry returns the registry the Router reads keypaths from.
func (r *Router) Registry() *Registry { return r.reg }

// Route processes one document published on topic.
func (r *Router) Route(topic string, doc Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Count(StatRecords, 1, 1)

	if cmd, ok := command(doc); ok {
		switch cmd {
		case CommandStart:
			return r.start(doc)
		case CommandStop:
			return r.stop()
		}
		// other commands share the channel with data and are routed normally
	}

	if r.defaultOnly(topic, doc) {
		r.stats.Count(StatSkipped, 1, 1)
		return nil
	}
	if !r.recording {
		r.stats.Count(StatDropped, 1, 1)
		return nil
	}
	return r.save(topic, doc)
}

func command(doc Document) (string, bool) {
	if doc == nil {
		return "", false
	}
	v, ok := doc.Field(CommandKey)
	if !ok {
		return "", false
	}
	s, ok := v.(S)
	return string(s), ok
}

// recordingID turns the id of a start command into the string used in file
// names.
func recordingID(v Value) (string, error) {
	switch id := v.(type) {
	case I64:
		return strconv.FormatInt(int64(id), 10), nil
	case F64:
		f := float64(id)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return strconv.FormatInt(int64(f), 10), nil
		}
	case S:
		if validID.MatchString(string(id)) {
			return string(id), nil
		}
	}
	return "", errors.Wrapf(ErrBadID, "%v", v)
}

func (r *Router) paths(id string) (temp, final string) {
	name := FilePrefix + id + r.ext
	return filepath.Join(r.dir, TempMarker+name), filepath.Join(r.dir, name)
}

func (r *Router) start(doc Document) error {
	if r.recording {
		return errors.Wrapf(ErrAlreadyRecording, "recording id %s", r.current.ID)
	}
	idv, ok := doc.Field(IDKey)
	if !ok {
		return ErrMissingID
	}
	id, err := recordingID(idv)
	if err != nil {
		return err
	}

	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.Printf("closing stray store: %v", err)
		}
		r.store = nil
	}

	tempPath, finalPath := r.paths(id)
	if tempPath == r.filename {
		return errors.Wrapf(ErrFilenameCollision, "id %s was already used by this process", id)
	}
	if _, err := os.Stat(finalPath); err == nil {
		return errors.Wrapf(ErrFilenameCollision, "'%s' already exists", finalPath)
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "checking '%s'", finalPath)
	}
	if r.catalog != nil {
		prev, ok, err := r.catalog.Recording(id)
		if err != nil {
			return errors.Wrapf(err, "looking up recording %s", id)
		}
		if ok && prev.State == StateFinalized {
			return errors.Wrapf(ErrFilenameCollision, "recording %s was finalized at %v", id, prev.Stopped)
		}
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return errors.Wrapf(err, "creating folder '%s'", r.dir)
	}
	store, err := r.open(tempPath)
	if err != nil {
		return errors.Wrapf(err, "opening '%s'", tempPath)
	}
	r.store = store
	r.filename = tempPath
	r.recording = true
	r.current = Recording{
		ID:        id,
		TempPath:  tempPath,
		FinalPath: finalPath,
		State:     StateRecording,
		Started:   r.now(),
	}
	r.putCatalog(r.current)
	r.stats.Gauge(StatRecording, 1, 1)
	r.log.Printf("starting recording id: %s (%s)", id, tempPath)
	return nil
}

func (r *Router) stop() error {
	if !r.recording {
		return ErrNotRecording
	}
	rec := r.current
	store := r.store
	r.recording = false
	r.store = nil
	r.stats.Gauge(StatRecording, 0, 1)
	rec.Stopped = r.now()

	if err := store.Close(); err != nil {
		err = errors.Wrapf(err, "closing '%s'", rec.TempPath)
		r.fail(rec, err)
		return err
	}
	if err := finalizeFile(rec.TempPath, rec.FinalPath); err != nil {
		err = errors.Wrapf(err, "renaming '%s' to '%s'", rec.TempPath, rec.FinalPath)
		r.fail(rec, err)
		return err
	}
	rec.State = StateFinalized
	r.putCatalog(rec)
	r.log.Printf("stopping recording id: %s (%s)", rec.ID, rec.FinalPath)

	var errs []string
	for _, f := range r.finalizers {
		if err := f.Finalize(rec); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("recording %s finalized, but: %v", rec.ID, errs)
	}
	return nil
}

func (r *Router) fail(rec Recording, err error) {
	rec.State = StateFailed
	rec.Error = err.Error()
	r.putCatalog(rec)
	r.log.Printf("recording id %s left as '%s': %v", rec.ID, rec.TempPath, err)
}

func (r *Router) putCatalog(rec Recording) {
	if r.catalog == nil {
		return
	}
	if err := r.catalog.Put(rec); err != nil {
		r.log.Printf("updating catalog for recording %s: %v", rec.ID, err)
	}
}

// finalizeFile renames the temporary file to its final name without ever
// replacing an existing file.
func finalizeFile(temp, final string) error {
	if _, err := os.Stat(final); err == nil {
		return errors.Errorf("'%s' already exists", final)
	}
	if err := os.Rename(temp, final); err != nil {
		return err
	}
	// best effort, the rename itself has already happened
	_ = syncDir(filepath.Dir(final))
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// defaultOnly reports whether topic is one of the groups for which a record
// carrying only reserved fields is not worth recording, and doc is such a
// record.
func (r *Router) defaultOnly(topic string, doc Document) bool {
	if _, ok := r.skipDefaultOnly[topic]; !ok {
		return false
	}
	fields, err := r.reg.FieldsFor(topic)
	if err != nil {
		return false
	}
	sep := r.reg.Separator()
	for _, field := range fields {
		if IsReserved(field) {
			continue
		}
		if present(doc, field, sep) {
			return false
		}
	}
	return true
}

func present(doc Document, field, sep string) bool {
	v, ok := Resolve(doc, field, sep)
	if !ok {
		return false
	}
	_, isNull := v.(Null)
	return !isNull
}

func (r *Router) save(topic string, doc Document) error {
	fields, err := r.reg.FieldsFor(topic)
	if err != nil {
		return errors.Wrapf(ErrTopicNotFound, "topic '%s'", topic)
	}
	sep := r.reg.Separator()
	seen := make(map[string]struct{}, len(fields))
	var errs FieldErrors
	var appends int64
	for _, field := range fields {
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		val, ok := Resolve(doc, field, sep)
		if !ok {
			continue
		}
		if _, isNull := val.(Null); isNull {
			continue
		}
		start := time.Now()
		if err := r.store.Append(topic, field, val); err != nil {
			errs = append(errs, &FieldError{Group: topic, Field: field, Err: err})
			continue
		}
		r.stats.Timing(StatAppendTime, time.Since(start), 1)
		appends++
		r.log.Debugf("appended %s%s%s", topic, sep, field)
	}
	r.stats.Count(StatAppends, appends, 1)
	if len(errs) > 0 {
		r.stats.Count(StatFieldErrors, int64(len(errs)), 1)
		return errs
	}
	return nil
}

// Recording reports whether a session is active.
func (r *Router) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Status returns the current session state.
func (r *Router) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return Status{AgentStatus: AgentIdle}
	}
	started := r.current.Started
	return Status{
		AgentStatus: AgentRecording,
		ID:          r.current.ID,
		Filename:    r.current.TempPath,
		Started:     &started,
	}
}

// Close closes the open store, if any. A session which is still active is
// not finalized: its file keeps the temporary marker.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	if r.recording {
		r.recording = false
		r.stats.Gauge(StatRecording, 0, 1)
		rec := r.current
		rec.Stopped = r.now()
		r.fail(rec, errors.New("interrupted before stop"))
	}
	return errors.Wrap(err, "closing store")
}
