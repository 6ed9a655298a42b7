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

package http

import (
	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/recorder"
	"github.com/pkg/errors"
)

// Main holds the options for recording records posted over HTTP.
type Main struct {
	recorder.Main `flag:"-"`
	Bind          string `help:"Listen for records on this address. They are posted to /topics/<group>."`
	BufferSize    int    `help:"Number of decoded records buffered before requests block."`
}

// NewMain gets a new Main with default values.
func NewMain() *Main {
	m := &Main{
		Main:       *recorder.NewMain(),
		Bind:       ":12121",
		BufferSize: 1000,
	}
	m.NewSource = m.newSource
	return m
}

func (m *Main) newSource() (hstore.Source, error) {
	tlsConf, err := m.TLSConfig()
	if err != nil {
		return nil, err
	}
	status := m.Handler()
	src, err := NewJSONSource(
		WithAddr(m.Bind),
		WithBuffer(m.BufferSize),
		WithHandler("/status", status),
		WithHandler("/metrics", status),
		WithTLS(tlsConf),
		WithLogger(m.Log()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "getting json source")
	}
	m.Log().Printf("listening for records on %s%s<group>", src.Addr(), TopicPrefix)
	return src, nil
}
