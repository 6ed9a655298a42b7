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

// Package json provides a Source which decodes a stream of JSON values.
package json

import (
	"encoding/json"
	"io"

	"github.com/mirrorworld/hstore"
	"github.com/pkg/errors"
)

// Default envelope keys.
const (
	DefaultTopicKey   = "topic"
	DefaultMessageKey = "message"
)

// Source reads JSON values one after another from a reader. Numbers are
// decoded as json.Number so that integers and floats stay distinct.
//
// With a fixed topic every value is a document published on that topic.
// Otherwise each value is an envelope like
//
//	{"topic": "sensor", "message": {"x": 1}}
type Source struct {
	dec        *json.Decoder
	topic      string
	topicKey   string
	messageKey string
}

// SrcOption is a functional option for NewSource.
type SrcOption func(s *Source)

// OptTopic publishes every value on topic instead of reading envelopes.
func OptTopic(topic string) SrcOption {
	return func(s *Source) {
		s.topic = topic
	}
}

// OptEnvelopeKeys sets the keys an envelope keeps the topic and the message
// under.
func OptEnvelopeKeys(topicKey, messageKey string) SrcOption {
	return func(s *Source) {
		s.topicKey = topicKey
		s.messageKey = messageKey
	}
}

// NewSource gets a new Source reading from r.
func NewSource(r io.Reader, opts ...SrcOption) *Source {
	s := &Source{
		dec:        json.NewDecoder(r),
		topicKey:   DefaultTopicKey,
		messageKey: DefaultMessageKey,
	}
	s.dec.UseNumber()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements hstore.Source. It returns io.EOF at the end of the
// stream. A syntax error ends the stream too, since the decoder can't
// resynchronize.
func (s *Source) Record() (hstore.Message, error) {
	var res interface{}
	err := s.dec.Decode(&res)
	if err == io.EOF {
		return hstore.Message{}, err
	} else if err != nil {
		return hstore.Message{}, errors.Wrap(err, "decoding json")
	}
	if s.topic != "" {
		return hstore.Message{Topic: s.topic, Data: res}, nil
	}
	return Unwrap(res, s.topicKey, s.messageKey), nil
}

// Unwrap takes the topic and the message out of an envelope. A value which
// is not an envelope becomes a message with an empty topic holding the
// whole value.
func Unwrap(val interface{}, topicKey, messageKey string) hstore.Message {
	env, ok := val.(map[string]interface{})
	if !ok {
		return hstore.Message{Data: val}
	}
	topic, ok := env[topicKey].(string)
	if !ok {
		return hstore.Message{Data: val}
	}
	msg, ok := env[messageKey]
	if !ok {
		return hstore.Message{Topic: topic, Data: val}
	}
	return hstore.Message{Topic: topic, Data: msg}
}

type rawSourceSource struct {
	rs   hstore.RawSource
	opts []SrcOption

	s *Source
}

// NewSourceFromRawSource chains the readers of rs into one Source.
func NewSourceFromRawSource(rs hstore.RawSource, opts ...SrcOption) hstore.Source {
	return &rawSourceSource{rs: rs, opts: opts}
}

func (r *rawSourceSource) Record() (hstore.Message, error) {
	for {
		if r.s == nil {
			reader, err := r.rs.NextReader()
			if err == io.EOF {
				return hstore.Message{}, err
			} else if err != nil {
				return hstore.Message{}, errors.Wrap(err, "getting next reader")
			}
			r.s = NewSource(reader, r.opts...)
		}
		msg, err := r.s.Record()
		if err == io.EOF {
			r.s = nil
			continue
		}
		return msg, err
	}
}
