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
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// HierarchySeparator delimits nested groups inside a store file. Keypath
// separators may not contain it.
const HierarchySeparator = "/"

// DefaultSeparator is the keypath separator used unless configured
// otherwise.
const DefaultSeparator = "."

// Reserved fields which every group records, whether configured or not.
const (
	FieldTimecode  = "timecode"
	FieldTimestamp = "timestamp"
	FieldHostname  = "hostname"
)

// ReservedFields returns the fields seeded into every new group.
func ReservedFields() []string {
	return []string{FieldTimecode, FieldTimestamp, FieldHostname}
}

// IsReserved reports whether field is one of the reserved fields.
func IsReserved(field string) bool {
	switch field {
	case FieldTimecode, FieldTimestamp, FieldHostname:
		return true
	}
	return false
}

// Registry holds, for each group, the ordered keypaths to extract from its
// documents. It is filled once from configuration and sealed when a Router
// starts using it.
type Registry struct {
	mu     sync.RWMutex
	sep    string
	groups map[string][]string
	sealed bool
}

// NewRegistry returns an empty Registry using DefaultSeparator.
func NewRegistry() *Registry {
	return &Registry{
		sep:    DefaultSeparator,
		groups: make(map[string][]string),
	}
}

// AppendField adds a keypath to a group, creating the group with the
// reserved fields first if it does not exist yet. Duplicates are kept.
func (r *Registry) AppendField(group, path string) error {
	if group == "" {
		return errors.New("group name cannot be empty")
	}
	if path == "" {
		return errors.Errorf("empty keypath for group '%s'", group)
	}
	if strings.Contains(path, HierarchySeparator) {
		return errors.Errorf("keypath '%s' for group '%s' cannot contain '%s'", path, group, HierarchySeparator)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return errors.Wrapf(ErrRegistrySealed, "appending '%s' to '%s'", path, group)
	}
	if _, ok := r.groups[group]; !ok {
		r.groups[group] = ReservedFields()
	}
	r.groups[group] = append(r.groups[group], path)
	return nil
}

// FieldsFor returns a copy of the keypaths configured for group.
func (r *Registry) FieldsFor(group string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fields, ok := r.groups[group]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownGroup, "'%s'", group)
	}
	ret := make([]string, len(fields))
	copy(ret, fields)
	return ret, nil
}

// Has reports whether group has been configured.
func (r *Registry) Has(group string) bool {
	r.mu.RLock()
	_, ok := r.groups[group]
	r.mu.RUnlock()
	return ok
}

// Groups returns the configured group names, sorted.
func (r *Registry) Groups() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetSeparator changes the keypath separator.
func (r *Registry) SetSeparator(sep string) error {
	if sep == "" || strings.Contains(sep, HierarchySeparator) {
		return ErrBadSeparator
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return errors.Wrap(ErrRegistrySealed, "setting separator")
	}
	r.sep = sep
	return nil
}

// Separator returns the keypath separator.
func (r *Registry) Separator() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sep
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Summary describes every configured keypath, for logging at startup.
func (r *Registry) Summary() string {
	sep := r.Separator()
	parts := make([]string, 0)
	for _, group := range r.Groups() {
		fields, _ := r.FieldsFor(group)
		for _, field := range fields {
			parts = append(parts, group+sep+field)
		}
	}
	return fmt.Sprintf("%s (total: %d)", strings.Join(parts, ", "), len(parts))
}
