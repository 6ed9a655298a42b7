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

// Package boltdb implements hstore.Store on top of a bbolt database file.
//
// A file holds a header bucket plus one bucket per group. Groups may nest
// (the group "a/b" is the bucket "b" inside the bucket "a"). Every dataset is
// a bucket inside its group holding a small JSON meta record and a bucket of
// fixed-size chunks of encoded rows. Each append is one bbolt transaction, so
// a row is either fully written or not at all, and a file survives being
// closed and reopened any number of times.
package boltdb

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mirrorworld/hstore"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Format identifies hstore files in their header.
const (
	Format        = "hstore"
	FormatVersion = 1
)

// DefaultChunkRows is the number of rows stored per chunk unless configured
// otherwise.
const DefaultChunkRows = 1024

var (
	headerBucket = []byte("\x00hstore")
	formatKey    = []byte("format")
	versionKey   = []byte("version")
	createdKey   = []byte("created")
)

// Header describes a store file.
type Header struct {
	Format  string
	Version int
	Created time.Time
}

// Store is an open hstore file. It implements hstore.Store.
type Store struct {
	mu     sync.Mutex
	db     *bolt.DB
	path   string
	groups map[string]*Group

	timeout   time.Duration
	chunkRows int
	noSync    bool
	readOnly  bool
	log       hstore.Logger
}

// StoreOption is a functional option for Open and OpenReadOnly.
type StoreOption func(s *Store)

// OptTimeout sets how long to wait for the file lock held by another
// process before giving up.
func OptTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.timeout = d
	}
}

// OptChunkRows sets the number of rows per chunk for datasets created
// through this Store. Existing datasets keep their chunk size.
func OptChunkRows(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.chunkRows = n
		}
	}
}

// OptNoSync skips the fsync after each commit. Faster, but a crash may lose
// the last appends.
func OptNoSync(noSync bool) StoreOption {
	return func(s *Store) {
		s.noSync = noSync
	}
}

// OptLogger sets the logger.
func OptLogger(l hstore.Logger) StoreOption {
	return func(s *Store) {
		s.log = l
	}
}

func newStore(path string, opts []StoreOption) *Store {
	s := &Store{
		path:      path,
		groups:    make(map[string]*Group),
		timeout:   time.Second,
		chunkRows: DefaultChunkRows,
		log:       hstore.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cannotOpen(path string, err error) error {
	return errors.Wrapf(hstore.ErrCannotOpen, "'%s': %v", path, err)
}

// Open opens the store at path for appending, creating it if it does not
// exist. Every failure has hstore.ErrCannotOpen as its cause. If Open created
// the file and then failed, the file is removed again.
func Open(path string, opts ...StoreOption) (*Store, error) {
	s := newStore(path, opts)

	created := false
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err == nil {
		created = true
		if err := f.Close(); err != nil {
			return nil, cannotOpen(path, err)
		}
	} else if !os.IsExist(err) {
		return nil, cannotOpen(path, err)
	}
	fail := func(err error) (*Store, error) {
		if created {
			if rerr := os.Remove(path); rerr != nil {
				s.log.Printf("removing partially created '%s': %v", path, rerr)
			}
		}
		return nil, cannotOpen(path, err)
	}

	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		return fail(err)
	}
	db.NoSync = s.noSync
	if err := db.Update(ensureHeader); err != nil {
		db.Close()
		return fail(err)
	}
	s.db = db
	s.log.Debugf("opened '%s' (created: %v)", path, created)
	return s, nil
}

// OpenReadOnly opens an existing store without ever modifying it. Other
// readers may open the file at the same time, writers may not.
func OpenReadOnly(path string, opts ...StoreOption) (*Store, error) {
	s := newStore(path, opts)
	s.readOnly = true
	if _, err := os.Stat(path); err != nil {
		return nil, cannotOpen(path, err)
	}
	db, err := bolt.Open(path, 0444, &bolt.Options{Timeout: s.timeout, ReadOnly: true})
	if err != nil {
		return nil, cannotOpen(path, err)
	}
	err = db.View(func(tx *bolt.Tx) error {
		_, err := readHeader(tx)
		return err
	})
	if err != nil {
		db.Close()
		return nil, cannotOpen(path, err)
	}
	s.db = db
	return s, nil
}

// Opener returns an hstore.OpenFunc which opens stores with opts.
func Opener(opts ...StoreOption) hstore.OpenFunc {
	return func(path string) (hstore.Store, error) {
		s, err := Open(path, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func ensureHeader(tx *bolt.Tx) error {
	if tx.Bucket(headerBucket) != nil {
		_, err := readHeader(tx)
		return err
	}
	empty := true
	c := tx.Cursor()
	if k, _ := c.First(); k != nil {
		empty = false
	}
	if !empty {
		return errors.New("not an hstore file: header missing")
	}
	b, err := tx.CreateBucket(headerBucket)
	if err != nil {
		return errors.Wrap(err, "creating header")
	}
	if err := b.Put(formatKey, []byte(Format)); err != nil {
		return errors.Wrap(err, "writing format")
	}
	if err := b.Put(versionKey, []byte(strconv.Itoa(FormatVersion))); err != nil {
		return errors.Wrap(err, "writing version")
	}
	if err := b.Put(createdKey, []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
		return errors.Wrap(err, "writing creation time")
	}
	return nil
}

func readHeader(tx *bolt.Tx) (Header, error) {
	b := tx.Bucket(headerBucket)
	if b == nil {
		return Header{}, errors.New("not an hstore file: header missing")
	}
	h := Header{Format: string(b.Get(formatKey))}
	if h.Format != Format {
		return h, errors.Errorf("not an hstore file: format '%s'", h.Format)
	}
	v, err := strconv.Atoi(string(b.Get(versionKey)))
	if err != nil {
		return h, errors.Wrap(err, "reading version")
	}
	if v > FormatVersion {
		return h, errors.Errorf("unsupported format version %d", v)
	}
	h.Version = v
	if created := b.Get(createdKey); created != nil {
		h.Created, err = time.Parse(time.RFC3339, string(created))
		if err != nil {
			return h, errors.Wrap(err, "reading creation time")
		}
	}
	return h, nil
}

// Path returns the file the store was opened from.
func (s *Store) Path() string { return s.path }

// Header returns the file header.
func (s *Store) Header() (h Header, err error) {
	err = s.view(func(tx *bolt.Tx) error {
		h, err = readHeader(tx)
		return err
	})
	return h, err
}

// Close syncs and closes the file. It may be called any number of times,
// and on a nil Store.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	db := s.db
	s.db = nil
	s.groups = make(map[string]*Group)
	if !s.readOnly {
		if err := db.Sync(); err != nil {
			db.Close()
			return errors.Wrapf(err, "syncing '%s'", s.path)
		}
	}
	return errors.Wrapf(db.Close(), "closing '%s'", s.path)
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return hstore.ErrClosed
	}
	return s.db.Update(fn)
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return hstore.ErrClosed
	}
	return s.db.View(fn)
}

// splitGroup turns a group name into bucket names.
func splitGroup(name string) ([][]byte, error) {
	name = strings.TrimPrefix(name, hstore.HierarchySeparator)
	if name == "" {
		return nil, errors.New("empty group name")
	}
	segs := strings.Split(name, hstore.HierarchySeparator)
	ret := make([][]byte, len(segs))
	for i, seg := range segs {
		if seg == "" {
			return nil, errors.Errorf("empty segment in group name '%s'", name)
		}
		if seg[0] == 0 {
			return nil, errors.Errorf("invalid group name '%s'", name)
		}
		ret[i] = []byte(seg)
	}
	return ret, nil
}

// Group returns the named group, creating it and any parent groups if they
// do not exist yet.
func (s *Store) Group(name string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, hstore.ErrClosed
	}
	if g, ok := s.groups[name]; ok {
		return g, nil
	}
	segs, err := splitGroup(name)
	if err != nil {
		return nil, err
	}
	g := &Group{store: s, name: name, path: segs}
	if s.readOnly {
		err = s.db.View(func(tx *bolt.Tx) error {
			if g.bucket(tx) == nil {
				return errors.Wrapf(hstore.ErrUnknownGroup, "'%s'", name)
			}
			return nil
		})
	} else {
		err = s.db.Update(g.create)
	}
	if err != nil {
		return nil, err
	}
	s.groups[name] = g
	return g, nil
}

// Groups returns the names of all groups in the file, nested ones included,
// sorted.
func (s *Store) Groups() ([]string, error) {
	var names []string
	err := s.view(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if name[0] == 0 {
				return nil
			}
			names = walkGroups(string(name), b, names)
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

func walkGroups(prefix string, b *bolt.Bucket, names []string) []string {
	names = append(names, prefix)
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v != nil {
			continue
		}
		sub := b.Bucket(k)
		if isDataset(sub) {
			continue
		}
		names = walkGroups(prefix+hstore.HierarchySeparator+string(k), sub, names)
	}
	return names
}

// Append implements hstore.Store by appending val to the dataset named
// field in group.
func (s *Store) Append(group, field string, val hstore.Value) error {
	g, err := s.Group(group)
	if err != nil {
		return errors.Wrapf(err, "getting group '%s'", group)
	}
	return g.Dataset(field).Append(val)
}

// Group is a node of the file hierarchy holding datasets and other groups.
type Group struct {
	store *Store
	name  string
	path  [][]byte
}

// Name returns the group's name as passed to Store.Group.
func (g *Group) Name() string { return g.name }

func (g *Group) bucket(tx *bolt.Tx) *bolt.Bucket {
	b := tx.Bucket(g.path[0])
	for _, seg := range g.path[1:] {
		if b == nil {
			return nil
		}
		b = b.Bucket(seg)
	}
	return b
}

func (g *Group) create(tx *bolt.Tx) error {
	b, err := tx.CreateBucketIfNotExists(g.path[0])
	if err != nil {
		return errors.Wrapf(err, "creating group '%s'", g.name)
	}
	for _, seg := range g.path[1:] {
		b, err = b.CreateBucketIfNotExists(seg)
		if err != nil {
			return errors.Wrapf(err, "creating group '%s'", g.name)
		}
		if isDataset(b) {
			return errors.Errorf("'%s' in group '%s' is a dataset", seg, g.name)
		}
	}
	return nil
}

// Dataset returns a handle on the named dataset. Nothing is read or written
// until it is used.
func (g *Group) Dataset(name string) *Dataset {
	return &Dataset{group: g, name: name}
}

// Datasets returns the names of the datasets in the group, sorted.
func (g *Group) Datasets() ([]string, error) {
	var names []string
	err := g.store.view(func(tx *bolt.Tx) error {
		gb := g.bucket(tx)
		if gb == nil {
			return errors.Wrapf(hstore.ErrUnknownGroup, "'%s'", g.name)
		}
		c := gb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if v == nil && isDataset(gb.Bucket(k)) {
				names = append(names, string(k))
			}
		}
		return nil
	})
	return names, err
}
