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

// Package nats records JSON messages published on NATS subjects. The subject
// a message arrives on, less an optional prefix, is its group.
package nats

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/mirrorworld/hstore"
	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Source implements hstore.Source with NATS subscriptions.
type Source struct {
	conn     *natsgo.Conn
	subjects []string
	queue    string
	prefix   string
	buffer   int

	msgs chan *natsgo.Msg
	subs []*natsgo.Subscription
	done chan struct{}
	once sync.Once
}

// SourceOption is a functional option for NewSource.
type SourceOption func(s *Source)

// OptSourceSubjects sets the subjects to subscribe to. Wildcards are allowed.
func OptSourceSubjects(subjects ...string) SourceOption {
	return func(s *Source) {
		s.subjects = subjects
	}
}

// OptSourceQueue makes the subscriptions members of a queue group, so that
// several recorders share the load.
func OptSourceQueue(queue string) SourceOption {
	return func(s *Source) {
		s.queue = queue
	}
}

// OptSourceStripPrefix removes prefix from subjects to get the topic.
func OptSourceStripPrefix(prefix string) SourceOption {
	return func(s *Source) {
		s.prefix = prefix
	}
}

// OptSourceBuffer sets how many messages are buffered before the slow
// consumer protection of the client kicks in.
func OptSourceBuffer(n int) SourceOption {
	return func(s *Source) {
		s.buffer = n
	}
}

// NewSource subscribes to the configured subjects on conn. The connection
// is closed along with the Source.
func NewSource(conn *natsgo.Conn, opts ...SourceOption) (*Source, error) {
	s := newSource(opts...)
	s.conn = conn
	for _, subj := range s.subjects {
		var sub *natsgo.Subscription
		var err error
		if s.queue != "" {
			sub, err = conn.ChanQueueSubscribe(subj, s.queue, s.msgs)
		} else {
			sub, err = conn.ChanSubscribe(subj, s.msgs)
		}
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "subscribing to '%s'", subj)
		}
		s.subs = append(s.subs, sub)
	}
	return s, nil
}

func newSource(opts ...SourceOption) *Source {
	s := &Source{
		subjects: []string{">"},
		buffer:   1024,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.msgs = make(chan *natsgo.Msg, s.buffer)
	return s
}

// Record returns the next message. It returns io.EOF after Close.
func (s *Source) Record() (hstore.Message, error) {
	select {
	case msg := <-s.msgs:
		return s.message(msg)
	case <-s.done:
		return hstore.Message{}, io.EOF
	}
}

// Topic gets the topic of a subject.
func (s *Source) Topic(subject string) string {
	if s.prefix == "" {
		return subject
	}
	return strings.TrimPrefix(subject, s.prefix)
}

func (s *Source) message(msg *natsgo.Msg) (hstore.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(msg.Data))
	dec.UseNumber()
	data := make(map[string]interface{})
	if err := dec.Decode(&data); err != nil {
		return hstore.Message{}, errors.Wrapf(err, "decoding message on '%s'", msg.Subject)
	}
	return hstore.Message{Topic: s.Topic(msg.Subject), Data: data}, nil
}

// Close unsubscribes and closes the connection.
func (s *Source) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		for _, sub := range s.subs {
			if uerr := sub.Unsubscribe(); uerr != nil && err == nil {
				err = errors.Wrapf(uerr, "unsubscribing from '%s'", sub.Subject)
			}
		}
		if s.conn != nil {
			s.conn.Close()
		}
	})
	return err
}
