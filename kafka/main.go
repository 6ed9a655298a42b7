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
	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/recorder"
	"github.com/pkg/errors"
)

// Main holds the options for recording from Kafka.
type Main struct {
	recorder.Main `flag:"-"`
	Hosts         []string `help:"Comma separated list of Kafka hosts and ports"`
	Topics        []string `help:"Comma separated list of Kafka topics. Each topic is a group."`
	Group         string   `help:"Kafka consumer group"`
	RegistryURL   string   `help:"Address of the confluent schema registry. Empty means values are JSON instead of Avro."`
	MaxMsgs       int      `help:"Stop after this many messages. Zero means no limit."`
}

// NewMain returns a new Main.
func NewMain() *Main {
	m := &Main{
		Main:   *recorder.NewMain(),
		Hosts:  []string{"localhost:9092"},
		Topics: []string{"test"},
		Group:  "hstore",
	}
	m.NewSource = m.newSource
	return m
}

func (m *Main) newSource() (hstore.Source, error) {
	var dec Decoder = JSONDecoder{}
	if m.RegistryURL != "" {
		dec = NewAvroDecoder(m.RegistryURL)
	}
	tlsConf, err := m.TLSConfig()
	if err != nil {
		return nil, err
	}
	src := NewSource(
		OptSourceHosts(m.Hosts...),
		OptSourceTopics(m.Topics...),
		OptSourceGroup(m.Group),
		OptSourceDecoder(dec),
		OptSourceMaxMsgs(m.MaxMsgs),
		OptSourceTLS(tlsConf),
		OptSourceLogger(m.Log()),
	)
	if err := src.Open(); err != nil {
		return nil, errors.Wrap(err, "opening kafka source")
	}
	m.Log().Printf("consuming %v from %v as group '%s'", m.Topics, m.Hosts, m.Group)
	return src, nil
}
