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

package hstore

import (
	"io"

	"github.com/pkg/errors"
)

// RecordHandler is what the Ingester hands parsed documents to. *Router is
// the usual implementation.
type RecordHandler interface {
	Route(topic string, doc Document) error
	Close() error
}

// Ingester pulls messages from a Source, parses them, and routes them one at
// a time in arrival order.
type Ingester struct {
	src     Source
	parser  Parser
	handler RecordHandler
	log     Logger
	stats   Statter
}

// IngestOption is a functional option for NewIngester.
type IngestOption func(n *Ingester)

// OptIngestParser replaces ParseDocument as the parser.
func OptIngestParser(p Parser) IngestOption {
	return func(n *Ingester) {
		n.parser = p
	}
}

// OptIngestLogger sets the logger.
func OptIngestLogger(l Logger) IngestOption {
	return func(n *Ingester) {
		n.log = l
	}
}

// OptIngestStatter sets the stats collector.
func OptIngestStatter(s Statter) IngestOption {
	return func(n *Ingester) {
		n.stats = s
	}
}

// NewIngester creates an Ingester reading from src and routing to handler.
func NewIngester(src Source, handler RecordHandler, opts ...IngestOption) *Ingester {
	n := &Ingester{
		src:     src,
		parser:  ParserFunc(ParseDocument),
		handler: handler,
		log:     NopLogger{},
		stats:   NopStatter{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run processes records until the source is exhausted or fails. Parse and
// routing errors are logged and counted, they do not stop the loop. The
// handler is always closed before Run returns; an active recording is left
// unfinalized.
func (n *Ingester) Run() (err error) {
	defer func() {
		if cerr := n.handler.Close(); cerr != nil {
			n.log.Printf("closing router: %v", cerr)
			if err == nil {
				err = cerr
			}
		}
	}()
	for {
		msg, err := n.src.Record()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "getting record")
		}
		doc, err := n.parser.Parse(msg.Data)
		if err != nil {
			n.stats.Count(StatParseErrors, 1, 1)
			n.log.Printf("couldn't parse record on topic '%s', err: %v", msg.Topic, err)
			continue
		}
		if err := n.handler.Route(msg.Topic, doc); err != nil {
			n.stats.Count(StatRouteErrors, 1, 1)
			n.log.Printf("routing record on topic '%s': %v", msg.Topic, err)
		}
	}
}
