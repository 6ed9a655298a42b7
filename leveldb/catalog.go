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

// Package leveldb implements hstore.Catalog on top of a LevelDB directory, so
// that finished recordings are remembered across restarts.
package leveldb

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/mirrorworld/hstore"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ hstore.Catalog = &Catalog{}

var recPrefix = []byte("rec/")

// Catalog is an hstore.Catalog which stores one JSON record per recording
// id.
type Catalog struct {
	lock    sync.Mutex
	dirname string
	db      *leveldb.DB
	sync    bool
}

// CatalogOption is a functional option for NewCatalog.
type CatalogOption func(c *Catalog)

// OptCatalogSync makes every Put wait for the write to reach the disk.
func OptCatalogSync(sync bool) CatalogOption {
	return func(c *Catalog) {
		c.sync = sync
	}
}

// NewCatalog opens, or creates, the catalog in dirname.
func NewCatalog(dirname string, opts ...CatalogOption) (*Catalog, error) {
	c := &Catalog{dirname: dirname, sync: true}
	for _, o := range opts {
		o(c)
	}
	err := os.MkdirAll(dirname, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "making directory")
	}
	c.db, err = leveldb.OpenFile(dirname, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dirname)
	}
	return c, nil
}

func recKey(id string) []byte {
	return append(append([]byte{}, recPrefix...), id...)
}

// Recording implements hstore.Catalog.
func (c *Catalog) Recording(id string) (rec hstore.Recording, ok bool, err error) {
	data, err := c.db.Get(recKey(id), nil)
	if err == leveldb.ErrNotFound {
		return rec, false, nil
	} else if err != nil {
		return rec, false, errors.Wrapf(err, "reading recording %s", id)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false, errors.Wrapf(err, "decoding recording %s", id)
	}
	return rec, true, nil
}

// Put implements hstore.Catalog.
func (c *Catalog) Put(rec hstore.Recording) error {
	if rec.ID == "" {
		return hstore.ErrMissingID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "encoding recording")
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	err = c.db.Put(recKey(rec.ID), data, &opt.WriteOptions{Sync: c.sync})
	return errors.Wrapf(err, "putting recording %s", rec.ID)
}

// Recordings implements hstore.Catalog. LevelDB keeps keys sorted, so the
// recordings come out ordered by id.
func (c *Catalog) Recordings() ([]hstore.Recording, error) {
	iter := c.db.NewIterator(util.BytesPrefix(recPrefix), nil)
	defer iter.Release()
	recs := make([]hstore.Recording, 0)
	for iter.Next() {
		var rec hstore.Recording
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, errors.Wrapf(err, "decoding recording at key '%s'", iter.Key())
		}
		recs = append(recs, rec)
	}
	return recs, errors.Wrap(iter.Error(), "iterating recordings")
}

// Close closes the underlying leveldb.
func (c *Catalog) Close() error {
	return errors.Wrap(c.db.Close(), "closing catalog")
}
