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

package kafka

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync"

	"github.com/elodina/go-avro"
	"github.com/pkg/errors"
)

// Decoder turns the value of a kafka message into data an hstore.Parser
// understands.
type Decoder interface {
	Decode(value []byte) (interface{}, error)
}

// JSONDecoder decodes message values as JSON objects, keeping numbers as
// json.Number so integers stay integers.
type JSONDecoder struct{}

// Decode implements Decoder.
func (JSONDecoder) Decode(value []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	parsed := make(map[string]interface{})
	err := dec.Decode(&parsed)
	return parsed, errors.Wrap(err, "unmarshaling json")
}

// AvroDecoder decodes values framed the Confluent way (a zero magic byte and
// a big endian schema id, then the avro body), fetching schemas from a
// Confluent schema registry.
type AvroDecoder struct {
	registryURL string
	client      *http.Client

	lock  sync.RWMutex
	cache map[int32]avro.Schema
}

// NewAvroDecoder returns an AvroDecoder using the registry at registryURL
// (host:port).
func NewAvroDecoder(registryURL string) *AvroDecoder {
	return &AvroDecoder{
		registryURL: registryURL,
		client:      http.DefaultClient,
		cache:       make(map[int32]avro.Schema),
	}
}

// Decode implements Decoder.
func (d *AvroDecoder) Decode(val []byte) (interface{}, error) {
	if len(val) <= 5 || val[0] != 0 {
		return nil, errors.Errorf("unexpected magic byte or length in avro kafka value, should be 0x00, but got 0x%.8x", val)
	}
	id := int32(binary.BigEndian.Uint32(val[1:5]))
	codec, err := d.codec(id)
	if err != nil {
		return nil, errors.Wrap(err, "getting avro codec")
	}
	ret, err := avroDecode(codec, val[5:])
	return ret, errors.Wrap(err, "decoding avro record")
}

// Schema is an object produced by the schema registry.
type Schema struct {
	Schema  string `json:"schema"`
	Subject string `json:"subject"`
	Version int    `json:"version"`
	ID      int    `json:"id"`
}

func (d *AvroDecoder) codec(id int32) (avro.Schema, error) {
	d.lock.RLock()
	codec, ok := d.cache[id]
	d.lock.RUnlock()
	if ok {
		return codec, nil
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if codec, ok := d.cache[id]; ok {
		return codec, nil
	}

	r, err := d.client.Get(fmt.Sprintf("http://%s/schemas/ids/%d", d.registryURL, id))
	if err != nil {
		return nil, errors.Wrap(err, "getting schema from registry")
	}
	defer r.Body.Close()
	if r.StatusCode >= 300 {
		bod, err := ioutil.ReadAll(r.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get schema, code: %d, no body", r.StatusCode)
		}
		return nil, errors.Errorf("failed to get schema, code: %d, resp: %s", r.StatusCode, bod)
	}
	schema := &Schema{}
	if err := json.NewDecoder(r.Body).Decode(schema); err != nil {
		return nil, errors.Wrap(err, "decoding schema from registry")
	}
	codec, err = avro.ParseSchema(schema.Schema)
	if err != nil {
		return nil, errors.Wrap(err, "parsing schema")
	}
	d.cache[id] = codec
	return codec, nil
}

func avroDecode(codec avro.Schema, data []byte) (map[string]interface{}, error) {
	reader := avro.NewGenericDatumReader()
	reader.SetSchema(codec)
	decoder := avro.NewBinaryDecoder(data)
	rec := avro.NewGenericRecord(codec)
	if err := reader.Read(rec, decoder); err != nil {
		return nil, errors.Wrap(err, "reading generic datum")
	}
	return rec.Map(), nil
}
