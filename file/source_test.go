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

package file

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/test"
)

func mustFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing contents: %v", err)
	}
	return path
}

func TestRawSource(t *testing.T) {
	d := t.TempDir()
	mustFile(t, d, "b.json", `hahahahahahahaha`)
	mustFile(t, d, "a.json", `blah blah blah`)
	mustFile(t, d, ".hidden", `nope`)
	test.ErrNil(t, os.Mkdir(filepath.Join(d, "sub"), 0755), "mkdir")

	rs, err := NewRawSource(d)
	test.ErrNil(t, err, "NewRawSource")

	gotNames := make([]string, 0, 2)
	var reader hstore.NamedReadCloser
	for reader, err = rs.NextReader(); err == nil; reader, err = rs.NextReader() {
		gotNames = append(gotNames, reader.Name())
		if _, err := io.ReadAll(reader); err != nil {
			t.Fatalf("reading file: %v", err)
		}
		reader.Close()
	}
	test.MustBe(t, io.EOF, err)
	test.MustBe(t, []string{"a.json", "b.json"}, gotNames)

	_, err = NewRawSource(filepath.Join(d, "missing"))
	test.MustErr(t, err, "missing path")
}

func readAll(t *testing.T, s *Source) []hstore.Message {
	t.Helper()
	var msgs []hstore.Message
	for {
		msg, err := s.Record()
		if err == io.EOF {
			return msgs
		}
		test.ErrNil(t, err, "Record")
		msgs = append(msgs, msg)
	}
}

func TestSourceTopicFromName(t *testing.T) {
	d := t.TempDir()
	mustFile(t, d, "sensor.json", `
{"hey": 44}
{"hey": 39.5}
`)
	mustFile(t, d, "coordinator.json", `{"command": "start", "id": 1}`)

	s, err := NewSource(OptSrcPath(d), OptSrcTopicFromName())
	test.ErrNil(t, err, "NewSource")
	test.MustBe(t, []hstore.Message{
		{Topic: "coordinator", Data: map[string]interface{}{"command": "start", "id": json.Number("1")}},
		{Topic: "sensor", Data: map[string]interface{}{"hey": json.Number("44")}},
		{Topic: "sensor", Data: map[string]interface{}{"hey": json.Number("39.5")}},
	}, readAll(t, s))
}

func TestSourceEnvelopes(t *testing.T) {
	d := t.TempDir()
	path := mustFile(t, d, "all.json", `{"topic": "a", "message": {"x": 1}}
{"topic": "b", "message": {"x": 2}}`)

	s, err := NewSource(OptSrcPath(path))
	test.ErrNil(t, err, "NewSource")
	msgs := readAll(t, s)
	test.MustBe(t, 2, len(msgs))
	test.MustBe(t, "a", msgs[0].Topic)
	test.MustBe(t, "b", msgs[1].Topic)

	s, err = NewSource(OptSrcPath(path), OptSrcTopic("fixed"))
	test.ErrNil(t, err, "NewSource")
	msgs = readAll(t, s)
	test.MustBe(t, "fixed", msgs[1].Topic)
}

func TestSourceBadJSON(t *testing.T) {
	d := t.TempDir()
	path := mustFile(t, d, "bad.json", `{"x": 1} {"x":`)
	s, err := NewSource(OptSrcPath(path), OptSrcTopic("g"))
	test.ErrNil(t, err, "NewSource")
	_, err = s.Record()
	test.ErrNil(t, err, "first Record")
	_, err = s.Record()
	if err == nil || err == io.EOF {
		t.Fatalf("expected decoding error, got %v", err)
	}
	_, err = s.Record()
	test.MustBe(t, io.EOF, err)
}

func TestSourceNoPath(t *testing.T) {
	_, err := NewSource()
	test.MustErr(t, err, "NewSource")
}
