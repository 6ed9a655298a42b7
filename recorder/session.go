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

package recorder

import (
	"io"

	"github.com/mirrorworld/hstore"
)

// Session wraps src so its records form exactly one recording: a start
// command carrying id is delivered first and a stop command after src is
// exhausted. Commands are sent on topic.
func Session(src hstore.Source, topic, id string) hstore.Source {
	return &session{src: src, topic: topic, id: id}
}

type session struct {
	src     hstore.Source
	topic   string
	id      string
	started bool
	stopped bool
}

func (s *session) command(cmd string) hstore.Message {
	data := map[string]interface{}{hstore.CommandKey: cmd}
	if cmd == hstore.CommandStart {
		data[hstore.IDKey] = s.id
	}
	return hstore.Message{Topic: s.topic, Data: data}
}

// Record implements hstore.Source.
func (s *session) Record() (hstore.Message, error) {
	if !s.started {
		s.started = true
		return s.command(hstore.CommandStart), nil
	}
	if s.stopped {
		return hstore.Message{}, io.EOF
	}
	msg, err := s.src.Record()
	if err == io.EOF {
		s.stopped = true
		return s.command(hstore.CommandStop), nil
	}
	return msg, err
}

// Close closes the wrapped source if it can be closed.
func (s *session) Close() error {
	if c, ok := s.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
