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

package leveldb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/test"
)

func TestCatalog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "catalog")
	c, err := NewCatalog(dir)
	test.ErrNil(t, err, "NewCatalog")

	_, ok, err := c.Recording("1")
	test.ErrNil(t, err, "Recording")
	test.MustBe(t, false, ok)

	started := time.Date(2021, 5, 6, 7, 8, 9, 0, time.UTC)
	recs := []hstore.Recording{
		{ID: "b", TempPath: "_acq_b.hst", FinalPath: "acq_b.hst", State: hstore.StateRecording, Started: started},
		{ID: "a", TempPath: "_acq_a.hst", FinalPath: "acq_a.hst", State: hstore.StateFinalized, Started: started, Stopped: started.Add(time.Minute)},
	}
	for _, rec := range recs {
		test.ErrNil(t, c.Put(rec), "Put")
	}
	test.MustCause(t, c.Put(hstore.Recording{}), hstore.ErrMissingID, "Put without id")

	rec, ok, err := c.Recording("a")
	test.ErrNil(t, err, "Recording")
	test.MustBe(t, true, ok)
	test.MustBe(t, recs[1], rec)

	// survives a restart
	test.ErrNil(t, c.Close(), "Close")
	c, err = NewCatalog(dir, OptCatalogSync(false))
	test.ErrNil(t, err, "reopen")
	defer c.Close()

	recs[0].State = hstore.StateFailed
	recs[0].Error = "interrupted"
	test.ErrNil(t, c.Put(recs[0]), "Put update")

	all, err := c.Recordings()
	test.ErrNil(t, err, "Recordings")
	test.MustBe(t, []hstore.Recording{recs[1], recs[0]}, all)
}

func TestCatalogWithRouter(t *testing.T) {
	c, err := NewCatalog(filepath.Join(t.TempDir(), "catalog"))
	test.ErrNil(t, err, "NewCatalog")
	defer c.Close()
	test.ErrNil(t, c.Put(hstore.Recording{ID: "5", State: hstore.StateFinalized}), "Put")

	reg := hstore.NewRegistry()
	test.ErrNil(t, reg.AppendField("g", "x"), "AppendField")
	open := func(path string) (hstore.Store, error) {
		t.Fatalf("unexpected open of '%s'", path)
		return nil, nil
	}
	r, err := hstore.NewRouter(reg, open, hstore.OptRouterDir(t.TempDir()), hstore.OptRouterCatalog(c))
	test.ErrNil(t, err, "NewRouter")
	err = r.Route("g", hstore.Object{"command": hstore.S("start"), "id": hstore.I64(5)})
	test.MustCause(t, err, hstore.ErrFilenameCollision, "start")
}
