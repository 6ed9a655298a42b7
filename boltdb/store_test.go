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

package boltdb_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/boltdb"
	"github.com/mirrorworld/hstore/test"
	bolt "go.etcd.io/bbolt"
)

func tempStore(t *testing.T, opts ...boltdb.StoreOption) (*boltdb.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.hst")
	s, err := boltdb.Open(path, opts...)
	test.ErrNil(t, err, "Open")
	return s, path
}

func TestOpenCreatesHeader(t *testing.T) {
	s, path := tempStore(t)
	h, err := s.Header()
	test.ErrNil(t, err, "Header")
	test.MustBe(t, boltdb.Format, h.Format)
	test.MustBe(t, boltdb.FormatVersion, h.Version)
	if time.Since(h.Created) > time.Hour {
		t.Fatalf("unexpected creation time %v", h.Created)
	}
	test.MustBe(t, path, s.Path())
	test.ErrNil(t, s.Close(), "Close")
}

func TestCloseIdempotent(t *testing.T) {
	s, _ := tempStore(t)
	test.ErrNil(t, s.Close(), "Close")
	test.ErrNil(t, s.Close(), "second Close")

	var nilStore *boltdb.Store
	test.ErrNil(t, nilStore.Close(), "nil Close")

	test.MustCause(t, s.Append("g", "x", hstore.I64(1)), hstore.ErrClosed, "Append after Close")
}

func TestOpenLocked(t *testing.T) {
	s, path := tempStore(t)
	defer s.Close()
	test.ErrNil(t, s.Append("g", "x", hstore.I64(1)), "Append")

	_, err := boltdb.Open(path, boltdb.OptTimeout(50*time.Millisecond))
	test.MustCause(t, err, hstore.ErrCannotOpen, "second Open")
	// the failed open must not remove someone else's file
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file gone after failed open: %v", err)
	}
}

func TestOpenCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.hst")
	test.ErrNil(t, os.WriteFile(path, bytes.Repeat([]byte("garbage!"), 2048), 0644), "write")
	_, err := boltdb.Open(path, boltdb.OptTimeout(50*time.Millisecond))
	test.MustCause(t, err, hstore.ErrCannotOpen, "Open")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("existing file removed after failed open: %v", err)
	}
}

func TestOpenForeignBoltFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foreign.db")
	db, err := bolt.Open(path, 0644, nil)
	test.ErrNil(t, err, "bolt.Open")
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucket([]byte("other"))
		return err
	})
	test.ErrNil(t, err, "create bucket")
	test.ErrNil(t, db.Close(), "bolt Close")

	_, err = boltdb.Open(path)
	test.MustCause(t, err, hstore.ErrCannotOpen, "Open")
}

func TestOpenBadDirectory(t *testing.T) {
	_, err := boltdb.Open(filepath.Join(t.TempDir(), "missing", "x.hst"))
	test.MustCause(t, err, hstore.ErrCannotOpen, "Open")
}

func TestOpenReadOnly(t *testing.T) {
	s, path := tempStore(t)
	test.ErrNil(t, s.Append("sensor", "x", hstore.F64(1)), "Append")
	test.ErrNil(t, s.Close(), "Close")

	r1, err := boltdb.OpenReadOnly(path)
	test.ErrNil(t, err, "OpenReadOnly")
	defer r1.Close()
	r2, err := boltdb.OpenReadOnly(path)
	test.ErrNil(t, err, "second OpenReadOnly")
	defer r2.Close()

	g, err := r1.Group("sensor")
	test.ErrNil(t, err, "Group")
	rows, err := g.Dataset("x").Read()
	test.ErrNil(t, err, "Read")
	test.MustBe(t, []hstore.Value{hstore.F64(1)}, rows)

	_, err = r1.Group("nope")
	test.MustCause(t, err, hstore.ErrUnknownGroup, "missing group")

	if err := r2.Append("sensor", "x", hstore.F64(2)); err == nil {
		t.Fatal("append on read-only store succeeded")
	}

	_, err = boltdb.OpenReadOnly(filepath.Join(t.TempDir(), "none.hst"))
	test.MustCause(t, err, hstore.ErrCannotOpen, "missing file")
}

func TestGroups(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()
	test.ErrNil(t, s.Append("b", "x", hstore.I64(1)), "Append")
	test.ErrNil(t, s.Append("/a/inner", "y", hstore.I64(1)), "Append")
	test.ErrNil(t, s.Append("a", "z", hstore.I64(1)), "Append")

	groups, err := s.Groups()
	test.ErrNil(t, err, "Groups")
	test.MustBe(t, []string{"a", "a/inner", "b"}, groups)

	g, err := s.Group("a")
	test.ErrNil(t, err, "Group")
	names, err := g.Datasets()
	test.ErrNil(t, err, "Datasets")
	test.MustBe(t, []string{"z"}, names)

	_, err = s.Group("a//b")
	test.MustErr(t, err, "empty segment")
	_, err = s.Group("")
	test.MustErr(t, err, "empty name")

	// a dataset can't also be a group
	_, err = s.Group("a/z")
	test.MustErr(t, err, "group over dataset")
	test.MustErr(t, s.Append("a", "inner", hstore.I64(1)), "dataset over group")
}
