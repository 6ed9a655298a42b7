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

package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strconv"

	"github.com/mirrorworld/hstore"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Element types of a dataset.
const (
	TypeFloat64 = "float64"
	TypeInt64   = "int64"
	TypeString  = "string"
)

var (
	metaKey      = []byte("\x00meta")
	chunksBucket = []byte("\x00chunks")
)

// Info describes a materialized dataset. Cols is 0 for a column of scalars
// and the row width for a matrix.
type Info struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Cols      int    `json:"cols"`
	Rows      uint64 `json:"rows"`
	ChunkRows int    `json:"chunk_rows"`
}

type meta struct {
	Type      string `json:"type"`
	Cols      int    `json:"cols"`
	Rows      uint64 `json:"rows"`
	ChunkRows int    `json:"chunk_rows"`
	Version   int    `json:"version"`
}

func (m meta) shape() string {
	if m.Cols == 0 {
		return m.Type
	}
	return m.Type + "[" + strconv.Itoa(m.Cols) + "]"
}

func isDataset(b *bolt.Bucket) bool {
	return b != nil && b.Get(metaKey) != nil
}

func readMeta(b *bolt.Bucket) (meta, error) {
	var m meta
	data := b.Get(metaKey)
	if data == nil {
		return m, errors.New("missing dataset metadata")
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errors.Wrap(err, "decoding dataset metadata")
	}
	if m.ChunkRows <= 0 {
		return m, errors.Errorf("bad chunk size %d in dataset metadata", m.ChunkRows)
	}
	return m, nil
}

func writeMeta(b *bolt.Bucket, m meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encoding dataset metadata")
	}
	return errors.Wrap(b.Put(metaKey, data), "writing dataset metadata")
}

// shapeOf returns the dataset layout val would materialize.
func shapeOf(val hstore.Value) (typ string, cols int, err error) {
	switch v := val.(type) {
	case hstore.F64:
		return TypeFloat64, 0, nil
	case hstore.I64:
		return TypeInt64, 0, nil
	case hstore.S:
		return TypeString, 0, nil
	case hstore.Array:
		if len(v) == 0 {
			return "", 0, errors.Wrap(hstore.ErrUnsupportedType, "empty array")
		}
		k, ok := v.ElemKind()
		if !ok {
			return "", 0, errors.Wrap(hstore.ErrUnsupportedType, "array with mixed element types")
		}
		switch k {
		case hstore.KindFloat:
			return TypeFloat64, len(v), nil
		case hstore.KindInt:
			return TypeInt64, len(v), nil
		case hstore.KindString:
			return TypeString, len(v), nil
		}
		return "", 0, errors.Wrapf(hstore.ErrUnsupportedType, "array of %v", k)
	case nil:
		return "", 0, errors.Wrap(hstore.ErrUnsupportedType, "nil value")
	}
	return "", 0, errors.Wrapf(hstore.ErrUnsupportedType, "%v", val.Kind())
}

func appendElem(buf []byte, val hstore.Value) []byte {
	switch v := val.(type) {
	case hstore.F64:
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(float64(v)))
	case hstore.I64:
		return binary.LittleEndian.AppendUint64(buf, uint64(v))
	case hstore.S:
		buf = binary.AppendUvarint(buf, uint64(len(v)))
		return append(buf, v...)
	}
	panic(errors.Errorf("cannot encode %T", val))
}

// encodeRow encodes a value already checked by shapeOf.
func encodeRow(val hstore.Value) []byte {
	if arr, ok := val.(hstore.Array); ok {
		var buf []byte
		for _, elem := range arr {
			buf = appendElem(buf, elem)
		}
		return buf
	}
	return appendElem(nil, val)
}

func decodeElem(buf []byte, typ string) (hstore.Value, []byte, error) {
	switch typ {
	case TypeFloat64, TypeInt64:
		if len(buf) < 8 {
			return nil, nil, errors.New("truncated number")
		}
		u := binary.LittleEndian.Uint64(buf)
		if typ == TypeFloat64 {
			return hstore.F64(math.Float64frombits(u)), buf[8:], nil
		}
		return hstore.I64(int64(u)), buf[8:], nil
	case TypeString:
		l, n := binary.Uvarint(buf)
		if n <= 0 || uint64(len(buf)-n) < l {
			return nil, nil, errors.New("truncated string")
		}
		buf = buf[n:]
		return hstore.S(buf[:l]), buf[l:], nil
	}
	return nil, nil, errors.Errorf("unknown dataset type '%s'", typ)
}

func decodeRow(buf []byte, m meta) (hstore.Value, []byte, error) {
	if m.Cols == 0 {
		return decodeElem(buf, m.Type)
	}
	row := make(hstore.Array, m.Cols)
	var err error
	for i := range row {
		row[i], buf, err = decodeElem(buf, m.Type)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "column %d", i)
		}
	}
	return row, buf, nil
}

func chunkKey(idx uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, idx)
}

// Dataset is an appendable column (or matrix) inside a Group. Its element
// type and row width are fixed by the first value appended and cannot change
// afterwards. Int and float values are never mixed, not even inside one row:
// an array such as [1.5, 2] is rejected with ErrUnsupportedType instead of
// taking the type of its first element and converting the rest.
type Dataset struct {
	group *Group
	name  string
}

// Name returns the dataset's name.
func (d *Dataset) Name() string { return d.name }

func (d *Dataset) wrap(err error) error {
	return errors.Wrapf(err, "dataset '%s' in group '%s'", d.name, d.group.name)
}

// Append adds val as a new row. Either the row is committed or the dataset
// is left exactly as it was.
func (d *Dataset) Append(val hstore.Value) error {
	if d.name == "" || d.name[0] == 0 {
		return d.wrap(errors.New("invalid dataset name"))
	}
	typ, cols, err := shapeOf(val)
	if err != nil {
		return d.wrap(err)
	}
	s := d.group.store
	err = s.update(func(tx *bolt.Tx) error {
		gb := d.group.bucket(tx)
		if gb == nil {
			return errors.Wrapf(hstore.ErrUnknownGroup, "'%s'", d.group.name)
		}
		name := []byte(d.name)
		b := gb.Bucket(name)
		var m meta
		var err error
		if b == nil {
			b, err = gb.CreateBucket(name)
			if err != nil {
				return errors.Wrap(err, "creating dataset")
			}
			if _, err := b.CreateBucket(chunksBucket); err != nil {
				return errors.Wrap(err, "creating chunks")
			}
			m = meta{Type: typ, Cols: cols, ChunkRows: s.chunkRows, Version: FormatVersion}
		} else {
			if !isDataset(b) {
				return errors.Errorf("'%s' is a group", d.name)
			}
			m, err = readMeta(b)
			if err != nil {
				return err
			}
			if m.Type != typ || m.Cols != cols {
				got := meta{Type: typ, Cols: cols}
				return errors.Wrapf(hstore.ErrMismatch, "dataset is %s, value is %s", m.shape(), got.shape())
			}
		}

		chunks := b.Bucket(chunksBucket)
		if chunks == nil {
			return errors.New("missing chunks bucket")
		}
		key := chunkKey(m.Rows / uint64(m.ChunkRows))
		row := encodeRow(val)
		old := chunks.Get(key)
		buf := make([]byte, 0, len(old)+len(row))
		buf = append(buf, old...)
		buf = append(buf, row...)
		if err := chunks.Put(key, buf); err != nil {
			return errors.Wrap(err, "writing chunk")
		}
		m.Rows++
		return writeMeta(b, m)
	})
	if err != nil {
		return d.wrap(err)
	}
	return nil
}

func (d *Dataset) bucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	gb := d.group.bucket(tx)
	if gb == nil {
		return nil, errors.Wrapf(hstore.ErrUnknownGroup, "'%s'", d.group.name)
	}
	b := gb.Bucket([]byte(d.name))
	if !isDataset(b) {
		return nil, hstore.ErrNotMaterialized
	}
	return b, nil
}

// Info returns the dataset's layout and row count. It fails with
// hstore.ErrNotMaterialized before the first successful append.
func (d *Dataset) Info() (info Info, err error) {
	err = d.group.store.view(func(tx *bolt.Tx) error {
		b, err := d.bucket(tx)
		if err != nil {
			return err
		}
		m, err := readMeta(b)
		if err != nil {
			return err
		}
		info = Info{Name: d.name, Type: m.Type, Cols: m.Cols, Rows: m.Rows, ChunkRows: m.ChunkRows}
		return nil
	})
	if err != nil {
		return info, d.wrap(err)
	}
	return info, nil
}

// Read returns every row in append order. Rows of a matrix are returned as
// hstore.Array values.
func (d *Dataset) Read() ([]hstore.Value, error) {
	var rows []hstore.Value
	err := d.group.store.view(func(tx *bolt.Tx) error {
		b, err := d.bucket(tx)
		if err != nil {
			return err
		}
		m, err := readMeta(b)
		if err != nil {
			return err
		}
		chunks := b.Bucket(chunksBucket)
		if chunks == nil {
			return errors.New("missing chunks bucket")
		}
		rows = make([]hstore.Value, 0, m.Rows)
		c := chunks.Cursor()
		for k, buf := c.First(); k != nil; k, buf = c.Next() {
			for len(buf) > 0 {
				var row hstore.Value
				row, buf, err = decodeRow(buf, m)
				if err != nil {
					return errors.Wrapf(err, "row %d", len(rows))
				}
				rows = append(rows, row)
			}
		}
		if uint64(len(rows)) != m.Rows {
			return errors.Errorf("found %d rows, metadata says %d", len(rows), m.Rows)
		}
		return nil
	})
	if err != nil {
		return nil, d.wrap(err)
	}
	return rows, nil
}
