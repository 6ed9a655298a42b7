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
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mirrorworld/hstore"
	"github.com/pkg/errors"
)

// TopicPrefix is the path under which records are posted: a POST to
// /topics/sensor delivers its body as records of topic "sensor".
const TopicPrefix = "/topics/"

// JSONSource implements the hstore.Source interface by listening for HTTP
// post requests and decoding json from their bodies.
type JSONSource struct {
	addr     string
	listener net.Listener
	server   *http.Server
	mux      *http.ServeMux
	tls      *tls.Config
	records  chan record
	done     chan struct{}
	once     sync.Once
	log      hstore.Logger
}

// JSONSourceOption is a functional option type for JSONSource.
type JSONSourceOption func(j *JSONSource)

// WithAddr is an option for the JSONSource which causes it to bind to the given
// address.
func WithAddr(addr string) JSONSourceOption {
	return func(j *JSONSource) {
		j.addr = addr
	}
}

// WithListener is an option for JSONSource which causes it to use the given
// listener. It will infer the address from the listener.
func WithListener(l net.Listener) JSONSourceOption {
	return func(j *JSONSource) {
		j.listener = l
		j.addr = l.Addr().String()
	}
}

// WithBuffer is an option for JSONSource which modifies the length of the
// channel used to buffer received records (while they are waiting to be
// retrieved by a call to Record).
func WithBuffer(n int) JSONSourceOption {
	return func(j *JSONSource) {
		if n > -1 {
			j.records = make(chan record, n)
		}
	}
}

// WithHandler mounts an extra handler next to the topic endpoint, e.g. for
// /status or /metrics.
func WithHandler(pattern string, h http.Handler) JSONSourceOption {
	return func(j *JSONSource) {
		j.mux.Handle(pattern, h)
	}
}

// WithTLS serves HTTPS using conf, which must provide a certificate. A nil
// config serves plain HTTP.
func WithTLS(conf *tls.Config) JSONSourceOption {
	return func(j *JSONSource) {
		j.tls = conf
	}
}

// WithLogger sets the logger.
func WithLogger(l hstore.Logger) JSONSourceOption {
	return func(j *JSONSource) {
		j.log = l
	}
}

// NewJSONSource creates a JSONSource - it takes JSONSourceOptions which modify
// its behavior.
func NewJSONSource(opts ...JSONSourceOption) (*JSONSource, error) {
	j := &JSONSource{
		mux:     http.NewServeMux(),
		records: make(chan record, 3),
		done:    make(chan struct{}),
		log:     hstore.NopLogger{},
	}
	j.mux.Handle(TopicPrefix, j)
	for _, opt := range opts {
		opt(j)
	}

	if j.listener == nil {
		var err error
		j.listener, err = net.Listen("tcp", j.addr)
		if err != nil {
			return nil, errors.Wrap(err, "listening")
		}
	}
	if tl, ok := j.listener.(*net.TCPListener); ok {
		j.listener = tcpKeepAliveListener{tl}
	}
	if j.tls != nil {
		j.listener = tls.NewListener(j.listener, j.tls)
	}

	j.server = &http.Server{
		Addr:    j.addr,
		Handler: j.mux,
	}
	go func() {
		err := j.server.Serve(j.listener)
		if err != nil && err != http.ErrServerClosed {
			j.send(record{err: errors.Wrap(err, "serving")})
		}
	}()
	return j, nil
}

// Addr gets the address that the JSONSource is listening on.
func (j *JSONSource) Addr() string {
	if j.listener != nil {
		return j.listener.Addr().String()
	}
	return j.addr
}

type record struct {
	msg hstore.Message
	err error
}

// send blocks until the record is consumed by Record or the source closes.
func (j *JSONSource) send(rec record) bool {
	select {
	case <-j.done:
		return false
	default:
	}
	select {
	case j.records <- rec:
		return true
	case <-j.done:
		return false
	}
}

// Record returns the next posted json object as a map[string]interface{}
// with json.Number numbers. After Close, records still buffered are
// returned before io.EOF.
func (j *JSONSource) Record() (hstore.Message, error) {
	select {
	case rec := <-j.records:
		return rec.msg, rec.err
	case <-j.done:
		select {
		case rec := <-j.records:
			return rec.msg, rec.err
		default:
			return hstore.Message{}, io.EOF
		}
	}
}

// Close stops the server. Requests being served are abandoned.
func (j *JSONSource) Close() error {
	var err error
	j.once.Do(func() {
		close(j.done)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Wrap(j.server.Shutdown(ctx), "shutting down http server")
	})
	return err
}

// ServeHTTP implements http.Handler for JSONSource. The body holds one or
// more JSON objects, optionally separated by whitespace.
func (j *JSONSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "unsupported method: "+r.Method, http.StatusMethodNotAllowed)
		return
	}
	topic := strings.Trim(strings.TrimPrefix(r.URL.Path, TopicPrefix), "/")
	if topic == "" {
		http.Error(w, "no topic in path", http.StatusNotFound)
		return
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	n := 0
	for {
		stuff := make(map[string]interface{})
		err := dec.Decode(&stuff)
		if err == io.EOF {
			break
		}
		if err != nil {
			err := errors.Wrapf(err, "decoding json after %d records", n)
			j.log.Printf("posting to '%s': %v", topic, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !j.send(record{msg: hstore.Message{Topic: topic, Data: stuff}}) {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		n++
	}
	w.WriteHeader(http.StatusNoContent)
}

// tcpKeepAliveListener is copied from net/http

type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}
