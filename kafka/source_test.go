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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/elodina/go-avro"
	"github.com/linkedin/goavro"
	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/test"
	"github.com/pkg/errors"
)

type fakeConsumer struct {
	msgs   chan *sarama.ConsumerMessage
	marked []int64
	closed int
}

func newFakeConsumer(vals ...string) *fakeConsumer {
	c := &fakeConsumer{msgs: make(chan *sarama.ConsumerMessage, len(vals))}
	for i, v := range vals {
		c.msgs <- &sarama.ConsumerMessage{Topic: "sensor", Offset: int64(i), Value: []byte(v)}
	}
	return c
}

func (c *fakeConsumer) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func (c *fakeConsumer) MarkOffset(msg *sarama.ConsumerMessage, metadata string) {
	c.marked = append(c.marked, msg.Offset)
}

func (c *fakeConsumer) Close() error {
	c.closed++
	close(c.msgs)
	return nil
}

func TestSourceRecord(t *testing.T) {
	c := newFakeConsumer(`{"x": 1, "y": 2.5}`, `not json`, `{"x": 2}`)
	src := NewSource()
	src.consumer = c

	msg, err := src.Record()
	test.ErrNil(t, err, "first Record")
	test.MustBe(t, "sensor", msg.Topic)
	doc, err := hstore.ParseDocument(msg.Data)
	test.ErrNil(t, err, "ParseDocument")
	x, _ := doc.Field("x")
	test.MustBe(t, hstore.I64(1), x)
	y, _ := doc.Field("y")
	test.MustBe(t, hstore.F64(2.5), y)

	_, err = src.Record()
	test.MustErr(t, err, "bad json")

	_, err = src.Record()
	test.ErrNil(t, err, "third Record")
	test.MustBe(t, []int64{0, 1, 2}, c.marked)

	test.ErrNil(t, src.Close(), "Close")
	test.ErrNil(t, src.Close(), "second Close")
	test.MustBe(t, 1, c.closed)
	_, err = src.Record()
	test.MustBe(t, io.EOF, err)
}

func TestSourceMaxMsgs(t *testing.T) {
	src := NewSource(OptSourceMaxMsgs(1))
	src.consumer = newFakeConsumer(`{"x": 1}`, `{"x": 2}`)
	_, err := src.Record()
	test.ErrNil(t, err, "first Record")
	_, err = src.Record()
	test.MustBe(t, io.EOF, err)
}

func TestAvroDecoder(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(registryHandler(&hits))
	defer srv.Close()

	dec := NewAvroDecoder(strings.TrimPrefix(srv.URL, "http://"))
	val := append([]byte{0, 0, 0, 0, 1}, avroEncodedValue(t)...)

	for i := 0; i < 2; i++ {
		data, err := dec.Decode(val)
		test.ErrNil(t, err, "Decode")
		doc, err := hstore.ParseDocument(data)
		test.ErrNil(t, err, "ParseDocument")
		v, ok := hstore.Resolve(doc, "mysubthing.subdub", ".")
		test.MustBe(t, true, ok)
		test.MustBe(t, hstore.F64(3.14), v)
		v, _ = hstore.Resolve(doc, "thing_int", ".")
		test.MustBe(t, hstore.I64(34), v)
	}
	test.MustBe(t, int32(1), atomic.LoadInt32(&hits), "schema should be cached")

	_, err := dec.Decode(append([]byte{0, 0, 0, 0, 2}, avroEncodedValue(t)...))
	test.MustErr(t, err, "unknown schema id")
	_, err = dec.Decode([]byte{1, 0, 0, 0, 1, 0})
	test.MustErr(t, err, "bad magic byte")
}

func TestElodinaDecode(t *testing.T) {
	schema, err := avro.ParseSchema(schema1)
	test.ErrNil(t, err, "ParseSchema")
	gomap, err := avroDecode(schema, avroEncodedValue(t))
	test.ErrNil(t, err, "avroDecode")
	if gomap["thing_int"].(int32) != 34 {
		t.Fatalf("unexpected decoded map: %v", gomap)
	}
}

var value = map[string]interface{}{
	"thing_string": "blah",
	"thing_int":    34,
	"mysubthing": map[string]interface{}{
		"com.mirrorworld.thing.SubThing": map[string]interface{}{
			"substring": map[string]interface{}{"string": "blahsub"},
			"subdub":    map[string]interface{}{"double": 3.14},
		},
	},
}

func avroEncodedValue(t *testing.T) []byte {
	t.Helper()
	codec, err := goavro.NewCodec(schema1)
	if err != nil {
		t.Fatal(err)
	}
	data, err := codec.BinaryFromNative([]byte{}, value)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func registryHandler(hits *int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		var id int32
		_, err := fmt.Sscanf(r.URL.Path, "/schemas/ids/%d", &id)
		if err != nil {
			http.Error(w, errors.Wrap(err, "extracting id from path").Error(), http.StatusBadRequest)
			return
		}
		if id != 1 {
			http.Error(w, fmt.Sprintf("unknown id: %d", id), http.StatusNotFound)
			return
		}
		if err := json.NewEncoder(w).Encode(Schema{Schema: schema1, ID: 1}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

var schema1 = `{
    "fields": [
        {"name": "thing_string", "type": "string"},
        {"name": "thing_int", "type": "int"},
        {
            "name": "mysubthing",
            "type": [
                "null",
                {
                    "fields": [
                        {"name": "substring", "type": ["null", "string"]},
                        {"name": "subdub", "type": ["null", "double"]}
                    ],
                    "name": "SubThing",
                    "type": "record"
                }
            ]
        }
    ],
    "name": "Thing",
    "namespace": "com.mirrorworld.thing",
    "type": "record"
}`
