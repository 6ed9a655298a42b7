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
	"github.com/google/uuid"
	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/recorder"
	"github.com/pkg/errors"
)

// Main holds the options for replaying JSON files through the recorder.
type Main struct {
	recorder.Main `flag:"-"`
	Path          string `help:"File or directory of JSON records to import."`
	Topic         string `help:"Group of every record. Empty means records are envelopes carrying their topic."`
	TopicFromName bool   `help:"Use each file's name, less its extension, as the group of its records."`
	TopicKey      string `help:"Envelope key holding the topic."`
	MessageKey    string `help:"Envelope key holding the record."`
	ID            string `help:"Wrap the import in a single recording with this id."`
	AutoID        bool   `help:"Wrap the import in a single recording with a random id."`
	CommandTopic  string `help:"Group on which the wrapping start and stop commands are sent."`
}

// NewMain gets a new Main with default values.
func NewMain() *Main {
	m := &Main{
		Main:         *recorder.NewMain(),
		TopicKey:     "topic",
		MessageKey:   "message",
		CommandTopic: "coordinator",
	}
	m.NewSource = m.newSource
	return m
}

func (m *Main) newSource() (hstore.Source, error) {
	if m.ID != "" && m.AutoID {
		return nil, errors.New("id and auto-id are mutually exclusive")
	}
	opts := []SrcOption{
		OptSrcPath(m.Path),
		OptSrcEnvelopeKeys(m.TopicKey, m.MessageKey),
	}
	if m.Topic != "" {
		opts = append(opts, OptSrcTopic(m.Topic))
	}
	if m.TopicFromName {
		opts = append(opts, OptSrcTopicFromName())
	}
	src, err := NewSource(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "getting file source")
	}
	id := m.ID
	if m.AutoID {
		id = uuid.New().String()
	}
	if id == "" {
		return src, nil
	}
	m.Log().Printf("importing %s as recording %s", m.Path, id)
	return recorder.Session(src, m.CommandTopic, id), nil
}
