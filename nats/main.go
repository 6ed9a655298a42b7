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
	"time"

	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/recorder"
	natsgo "github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Main holds the options for recording from NATS.
type Main struct {
	recorder.Main `flag:"-"`
	URL           string   `help:"NATS server URL(s), comma separated."`
	Subjects      []string `help:"Subjects to subscribe to. Wildcards are allowed."`
	Queue         string   `help:"Queue group to join. Empty subscribes normally."`
	StripPrefix   string   `help:"Prefix removed from subjects to get the group name."`
	Name          string   `help:"Client name reported to the server."`
	Creds         string   `help:"User credentials file."`
}

// NewMain gets a new Main with default values.
func NewMain() *Main {
	m := &Main{
		Main:        *recorder.NewMain(),
		URL:         natsgo.DefaultURL,
		Subjects:    []string{"hstore.>"},
		StripPrefix: "hstore.",
		Name:        "hstore",
	}
	m.NewSource = m.newSource
	return m
}

func (m *Main) newSource() (hstore.Source, error) {
	log := m.Log()
	opts := []natsgo.Option{
		natsgo.Name(m.Name),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			log.Printf("nats reconnected to %s", c.ConnectedUrl())
		}),
		natsgo.ErrorHandler(func(_ *natsgo.Conn, sub *natsgo.Subscription, err error) {
			if sub != nil {
				log.Printf("nats error on '%s': %v", sub.Subject, err)
				return
			}
			log.Printf("nats error: %v", err)
		}),
	}
	tlsConf, err := m.TLSConfig()
	if err != nil {
		return nil, err
	}
	if tlsConf != nil {
		opts = append(opts, natsgo.Secure(tlsConf))
	}
	if m.Creds != "" {
		opts = append(opts, natsgo.UserCredentials(m.Creds))
	}
	conn, err := natsgo.Connect(m.URL, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", m.URL)
	}
	src, err := NewSource(conn,
		OptSourceSubjects(m.Subjects...),
		OptSourceQueue(m.Queue),
		OptSourceStripPrefix(m.StripPrefix),
	)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "getting nats source")
	}
	log.Printf("subscribed to %v on %s", m.Subjects, conn.ConnectedUrl())
	return src, nil
}
