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
	"path/filepath"
	"testing"

	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/boltdb"
	"github.com/mirrorworld/hstore/test"
)

func readAll(t *testing.T, s *boltdb.Store, group, name string) []hstore.Value {
	t.Helper()
	g, err := s.Group(group)
	test.ErrNil(t, err, "Group")
	rows, err := g.Dataset(name).Read()
	test.ErrNil(t, err, "Read")
	return rows
}

func info(t *testing.T, s *boltdb.Store, group, name string) boltdb.Info {
	t.Helper()
	g, err := s.Group(group)
	test.ErrNil(t, err, "Group")
	i, err := g.Dataset(name).Info()
	test.ErrNil(t, err, "Info")
	return i
}

func TestDatasetTypeLockIn(t *testing.T) {
	tests := []struct {
		first hstore.Value
		typ   string
		cols  int
		bad   []hstore.Value
	}{
		{
			first: hstore.F64(1.5),
			typ:   boltdb.TypeFloat64,
			bad:   []hstore.Value{hstore.I64(1), hstore.S("x"), hstore.Array{hstore.F64(1)}},
		},
		{
			first: hstore.I64(1),
			typ:   boltdb.TypeInt64,
			bad:   []hstore.Value{hstore.F64(1), hstore.S("1"), hstore.Array{hstore.I64(1)}},
		},
		{
			first: hstore.S("a"),
			typ:   boltdb.TypeString,
			bad:   []hstore.Value{hstore.I64(1), hstore.Array{hstore.S("a")}},
		},
		{
			first: hstore.Array{hstore.F64(1), hstore.F64(2), hstore.F64(3)},
			typ:   boltdb.TypeFloat64,
			cols:  3,
			bad: []hstore.Value{
				hstore.Array{hstore.F64(1), hstore.F64(2)},
				hstore.Array{hstore.I64(1), hstore.I64(2), hstore.I64(3)},
				hstore.F64(1),
			},
		},
		{
			first: hstore.Array{hstore.S("a"), hstore.S("b")},
			typ:   boltdb.TypeString,
			cols:  2,
			bad:   []hstore.Value{hstore.Array{hstore.S("a")}, hstore.S("a")},
		},
	}

	for _, tst := range tests {
		s, _ := tempStore(t)
		test.ErrNil(t, s.Append("g", "f", tst.first), "first Append")
		for _, bad := range tst.bad {
			test.MustCause(t, s.Append("g", "f", bad), hstore.ErrMismatch, "mismatched Append")
		}
		test.ErrNil(t, s.Append("g", "f", tst.first), "matching Append")
		inf := info(t, s, "g", "f")
		test.MustBe(t, boltdb.Info{Name: "f", Type: tst.typ, Cols: tst.cols, Rows: 2, ChunkRows: boltdb.DefaultChunkRows}, inf)
		test.MustBe(t, []hstore.Value{tst.first, tst.first}, readAll(t, s, "g", "f"))
		test.ErrNil(t, s.Close(), "Close")
	}
}

func TestDatasetUnsupported(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()
	unsupported := []hstore.Value{
		hstore.Null{},
		hstore.B(true),
		hstore.Object{"a": hstore.I64(1)},
		hstore.Array{},
		hstore.Array{hstore.I64(1), hstore.F64(1)},
		hstore.Array{hstore.F64(1.5), hstore.I64(2)},
		hstore.Array{hstore.B(true)},
		nil,
	}
	for _, v := range unsupported {
		test.MustCause(t, s.Append("g", "f", v), hstore.ErrUnsupportedType, "Append")
	}
	g, err := s.Group("g")
	test.ErrNil(t, err, "Group")
	_, err = g.Dataset("f").Info()
	test.MustCause(t, err, hstore.ErrNotMaterialized, "Info")
	names, err := g.Datasets()
	test.ErrNil(t, err, "Datasets")
	test.MustBe(t, 0, len(names))
}

func TestDatasetWidthMismatch(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()
	test.ErrNil(t, s.Append("g", "arr", hstore.Array{hstore.F64(1), hstore.F64(2), hstore.F64(3)}), "Append")
	test.MustCause(t, s.Append("g", "arr", hstore.Array{hstore.F64(1), hstore.F64(2)}), hstore.ErrMismatch, "Append")
	test.MustBe(t, uint64(1), info(t, s, "g", "arr").Rows)
}

func TestDatasetDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dur.hst")
	var expected []hstore.Value
	for cycle := 0; cycle < 3; cycle++ {
		s, err := boltdb.Open(path, boltdb.OptChunkRows(4))
		test.ErrNil(t, err, "Open")
		for i := 0; i < 7; i++ {
			v := hstore.I64(cycle*100 + i)
			test.ErrNil(t, s.Append("sensor/inner", "x", v), "Append")
			expected = append(expected, v)
		}
		test.ErrNil(t, s.Close(), "Close")
	}

	s, err := boltdb.Open(path, boltdb.OptChunkRows(100))
	test.ErrNil(t, err, "reopen")
	defer s.Close()
	test.MustBe(t, expected, readAll(t, s, "sensor/inner", "x"))
	inf := info(t, s, "sensor/inner", "x")
	test.MustBe(t, uint64(21), inf.Rows)
	// the chunk size is fixed when the dataset is created
	test.MustBe(t, 4, inf.ChunkRows)
}

func TestDatasetStrings(t *testing.T) {
	s, _ := tempStore(t)
	defer s.Close()
	values := []hstore.Value{hstore.S(""), hstore.S("N"), hstore.S("ünïcode"), hstore.S(string(make([]byte, 300)))}
	for _, v := range values {
		test.ErrNil(t, s.Append("g", "s", v), "Append")
	}
	test.MustBe(t, values, readAll(t, s, "g", "s"))

	matrix := []hstore.Value{
		hstore.Array{hstore.S("a"), hstore.S("")},
		hstore.Array{hstore.S("long string"), hstore.S("b")},
	}
	for _, v := range matrix {
		test.ErrNil(t, s.Append("g", "m", v), "Append")
	}
	test.MustBe(t, matrix, readAll(t, s, "g", "m"))
}

// Two numeric fields, one text field, and a record whose numeric field
// carries text: only that field fails.
func TestRouterWithStore(t *testing.T) {
	reg := hstore.NewRegistry()
	test.ErrNil(t, reg.AppendField("sensor", "value"), "append")
	test.ErrNil(t, reg.AppendField("sensor", "meta.unit"), "append")
	dir := t.TempDir()
	r, err := hstore.NewRouter(reg, boltdb.Opener(boltdb.OptNoSync(true)), hstore.OptRouterDir(dir))
	test.ErrNil(t, err, "NewRouter")

	docs := []hstore.Object{
		{"command": hstore.S("start"), "id": hstore.I64(1)},
		{"value": hstore.F64(1.5), "meta": hstore.Object{"unit": hstore.S("N")}},
		{"value": hstore.F64(2.25), "meta": hstore.Object{"unit": hstore.S("N")}},
		{"value": hstore.S("bad")},
	}
	for _, doc := range docs[:3] {
		test.ErrNil(t, r.Route("sensor", doc), "Route")
	}
	err = r.Route("sensor", docs[3])
	test.MustBe(t, true, hstore.IsCause(err, hstore.ErrMismatch), "third record")
	test.ErrNil(t, r.Route("sensor", hstore.Object{"command": hstore.S("stop")}), "stop")

	s, err := boltdb.OpenReadOnly(filepath.Join(dir, "acq_1.hst"))
	test.ErrNil(t, err, "OpenReadOnly")
	defer s.Close()
	test.MustBe(t, []hstore.Value{hstore.F64(1.5), hstore.F64(2.25)}, readAll(t, s, "sensor", "value"))
	test.MustBe(t, []hstore.Value{hstore.S("N"), hstore.S("N")}, readAll(t, s, "sensor", "meta.unit"))
}
