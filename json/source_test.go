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

package json

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/test"
)

func TestSourceFixedTopic(t *testing.T) {
	src := NewSource(strings.NewReader(`{"x": 1} {"x": 1.5}
[1, 2]`), OptTopic("sensor"))

	msg, err := src.Record()
	test.ErrNil(t, err, "Record")
	test.MustBe(t, hstore.Message{Topic: "sensor", Data: map[string]interface{}{"x": json.Number("1")}}, msg)

	msg, err = src.Record()
	test.ErrNil(t, err, "Record")
	doc, err := hstore.ParseDocument(msg.Data)
	test.ErrNil(t, err, "ParseDocument")
	test.MustBe(t, hstore.Object{"x": hstore.F64(1.5)}, doc)

	// not an object, but still a value; rejecting it is the parser's job
	msg, err = src.Record()
	test.ErrNil(t, err, "Record")
	test.MustBe(t, []interface{}{json.Number("1"), json.Number("2")}, msg.Data)

	_, err = src.Record()
	test.MustBe(t, io.EOF, err)
}

func TestSourceEnvelope(t *testing.T) {
	src := NewSource(strings.NewReader(`
{"topic": "sensor", "message": {"x": 1}}
{"topic": "sensor", "x": 2}
{"message": {"x": 3}}
{"t": "other", "m": {"y": 4}}
`))
	expected := []hstore.Message{
		{Topic: "sensor", Data: map[string]interface{}{"x": json.Number("1")}},
		{Topic: "sensor", Data: map[string]interface{}{"topic": "sensor", "x": json.Number("2")}},
		{Data: map[string]interface{}{"message": map[string]interface{}{"x": json.Number("3")}}},
		{Data: map[string]interface{}{"t": "other", "m": map[string]interface{}{"y": json.Number("4")}}},
	}
	for i, exp := range expected {
		msg, err := src.Record()
		test.ErrNil(t, err, "Record")
		test.MustBe(t, exp, msg, string(rune('0'+i)))
	}

	src = NewSource(strings.NewReader(`{"t": "other", "m": {"y": 4}}`), OptEnvelopeKeys("t", "m"))
	msg, err := src.Record()
	test.ErrNil(t, err, "Record")
	test.MustBe(t, hstore.Message{Topic: "other", Data: map[string]interface{}{"y": json.Number("4")}}, msg)
}

func TestSourceSyntaxError(t *testing.T) {
	src := NewSource(strings.NewReader(`{"x": 1} {"x": `), OptTopic("a"))
	_, err := src.Record()
	test.ErrNil(t, err, "Record")
	_, err = src.Record()
	if err == nil || err == io.EOF {
		t.Fatalf("expected decoding error, got %v", err)
	}
}

type namedReader struct {
	io.Reader
	name string
}

func (n namedReader) Close() error  { return nil }
func (n namedReader) Name() string { return n.name }

type sliceRawSource []hstore.NamedReadCloser

func (s *sliceRawSource) NextReader() (hstore.NamedReadCloser, error) {
	if len(*s) == 0 {
		return nil, io.EOF
	}
	r := (*s)[0]
	*s = (*s)[1:]
	return r, nil
}

func TestSourceFromRawSource(t *testing.T) {
	rs := &sliceRawSource{
		namedReader{strings.NewReader(`{"a": 1}`), "one"},
		namedReader{strings.NewReader(``), "empty"},
		namedReader{strings.NewReader(`{"a": 2} {"a": 3}`), "two"},
	}
	src := NewSourceFromRawSource(rs, OptTopic("g"))
	var got []interface{}
	for {
		msg, err := src.Record()
		if err == io.EOF {
			break
		}
		test.ErrNil(t, err, "Record")
		got = append(got, msg.Data.(map[string]interface{})["a"])
	}
	test.MustBe(t, []interface{}{json.Number("1"), json.Number("2"), json.Number("3")}, got)
}
