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
	"sort"
	"sync"
)

// MapCatalog is an in-memory Catalog. It forgets everything when the process
// exits; use the leveldb Catalog to remember sessions across restarts.
type MapCatalog struct {
	lock       sync.RWMutex
	recordings map[string]Recording
}

// NewMapCatalog creates a new MapCatalog.
func NewMapCatalog() *MapCatalog {
	return &MapCatalog{
		recordings: make(map[string]Recording),
	}
}

// Recording implements Catalog.
func (m *MapCatalog) Recording(id string) (Recording, bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	rec, ok := m.recordings[id]
	return rec, ok, nil
}

// Put implements Catalog.
func (m *MapCatalog) Put(rec Recording) error {
	m.lock.Lock()
	m.recordings[rec.ID] = rec
	m.lock.Unlock()
	return nil
}

// Recordings implements Catalog.
func (m *MapCatalog) Recordings() ([]Recording, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	ret := make([]Recording, 0, len(m.recordings))
	for _, rec := range m.recordings {
		ret = append(ret, rec)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret, nil
}

// Close implements Catalog. It does nothing.
func (m *MapCatalog) Close() error { return nil }
