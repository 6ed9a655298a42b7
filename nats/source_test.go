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

package nats

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/mirrorworld/hstore/test"
	natsgo "github.com/nats-io/nats.go"
)

func TestSourceRecord(t *testing.T) {
	s := newSource(OptSourceStripPrefix("hstore."), OptSourceBuffer(4))
	s.msgs <- &natsgo.Msg{Subject: "hstore.sensor", Data: []byte(`{"x": 1, "y": 1.5}`)}
	s.msgs <- &natsgo.Msg{Subject: "hstore.sensor", Data: []byte(`{"x": `)}
	s.msgs <- &natsgo.Msg{Subject: "other.coordinator", Data: []byte(`{"command": "stop"}`)}

	msg, err := s.Record()
	test.ErrNil(t, err, "first Record")
	test.MustBe(t, "sensor", msg.Topic)
	test.MustBe(t, map[string]interface{}{"x": json.Number("1"), "y": json.Number("1.5")}, msg.Data)

	_, err = s.Record()
	test.MustErr(t, err, "truncated json")

	msg, err = s.Record()
	test.ErrNil(t, err, "third Record")
	test.MustBe(t, "other.coordinator", msg.Topic)

	test.ErrNil(t, s.Close(), "Close")
	test.ErrNil(t, s.Close(), "second Close")
	_, err = s.Record()
	test.MustBe(t, io.EOF, err)
}

func TestTopic(t *testing.T) {
	s := newSource()
	test.MustBe(t, "hstore.sensor", s.Topic("hstore.sensor"))
	s = newSource(OptSourceStripPrefix("hstore."))
	test.MustBe(t, "sensor", s.Topic("hstore.sensor"))
	test.MustBe(t, []string{">"}, newSource().subjects)
}
