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
	"encoding/json"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mirrorworld/hstore"
)

func TestJSONSource(t *testing.T) {
	j, err := NewJSONSource(WithAddr("localhost:0"))
	if err != nil {
		t.Fatalf("getting json source: %v", err)
	}
	defer j.Close()

	tests := []struct {
		method   string
		path     string
		data     string
		code     int
		expTopic string
		exp      []map[string]interface{}
	}{
		{
			method:   "POST",
			path:     "/topics/sensor",
			data:     `{"hello": 2}`,
			code:     nethttp.StatusNoContent,
			expTopic: "sensor",
			exp:      []map[string]interface{}{{"hello": json.Number("2")}},
		},
		{
			method:   "POST",
			path:     "/topics/coordinator/",
			data:     `{"hello": 2}{"goodbye": 3.5}`,
			code:     nethttp.StatusNoContent,
			expTopic: "coordinator",
			exp:      []map[string]interface{}{{"hello": json.Number("2")}, {"goodbye": json.Number("3.5")}},
		},
		{
			method: "POST",
			path:   "/topics/sensor",
			data: `{"hello": 2}  
  {"goodbye": 3}`,
			code:     nethttp.StatusNoContent,
			expTopic: "sensor",
			exp:      []map[string]interface{}{{"hello": json.Number("2")}, {"goodbye": json.Number("3")}},
		},
		{
			method: "POST",
			path:   "/topics/",
			data:   `{"hello": 2}`,
			code:   nethttp.StatusNotFound,
		},
		{
			method: "POST",
			path:   "/topics/sensor",
			data:   `{"hello: 2}`,
			code:   nethttp.StatusBadRequest,
		},
		{
			method: "GET",
			path:   "/topics/sensor",
			code:   nethttp.StatusMethodNotAllowed,
		},
	}

	for i, test := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			w := httptest.NewRecorder()
			done := make(chan struct{})
			go func() {
				j.ServeHTTP(w, httptest.NewRequest(test.method, test.path, strings.NewReader(test.data)))
				close(done)
			}()
			for _, exp := range test.exp {
				msg, err := j.Record()
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if msg.Topic != test.expTopic {
					t.Fatalf("unexpected topic: %s, exp: %s", msg.Topic, test.expTopic)
				}
				if !reflect.DeepEqual(msg.Data, exp) {
					t.Fatalf("unexpected data: %#v, exp: %#v", msg.Data, exp)
				}
			}
			<-done
			if w.Code != test.code {
				t.Fatalf("unexpected code: %d, exp: %d", w.Code, test.code)
			}
		})
	}
}

func TestJSONSourceServer(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	status := nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Write([]byte(`{"agent_status":"idle"}`))
	})
	j, err := NewJSONSource(WithListener(ln), WithHandler("/status", status), WithBuffer(10))
	if err != nil {
		t.Fatalf("getting json source: %v", err)
	}
	base := "http://" + j.Addr()

	resp, err := nethttp.Post(base+"/topics/sensor", "application/json", strings.NewReader(`{"x": 1}`))
	if err != nil {
		t.Fatalf("posting: %v", err)
	}
	resp.Body.Close()
	msg, err := j.Record()
	if err != nil {
		t.Fatalf("getting record: %v", err)
	}
	doc, err := hstore.ParseDocument(msg.Data)
	if err != nil {
		t.Fatalf("parsing: %v", err)
	}
	if x, _ := doc.Field("x"); x != hstore.I64(1) {
		t.Fatalf("unexpected x: %v", x)
	}

	resp, err = nethttp.Get(base + "/status")
	if err != nil {
		t.Fatalf("getting status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	if err := j.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}
	errs := make(chan error)
	go func() {
		_, err := j.Record()
		errs <- err
	}()
	select {
	case err := <-errs:
		if err != io.EOF {
			t.Fatalf("expected EOF after close, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked after Close")
	}
}

func TestJSONSourceDrainsAfterClose(t *testing.T) {
	j, err := NewJSONSource(WithAddr("localhost:0"), WithBuffer(10))
	if err != nil {
		t.Fatalf("getting json source: %v", err)
	}
	w := httptest.NewRecorder()
	j.ServeHTTP(w, httptest.NewRequest("POST", "/topics/sensor", strings.NewReader(`{"x": 1}{"x": 2}{"x": 3}`)))
	if w.Code != nethttp.StatusNoContent {
		t.Fatalf("unexpected code: %d", w.Code)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}

	for i := 1; i <= 3; i++ {
		msg, err := j.Record()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if exp := json.Number(fmt.Sprint(i)); msg.Data.(map[string]interface{})["x"] != exp {
			t.Fatalf("unexpected record %d: %#v", i, msg.Data)
		}
	}
	if _, err := j.Record(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}

	w = httptest.NewRecorder()
	j.ServeHTTP(w, httptest.NewRequest("POST", "/topics/sensor", strings.NewReader(`{"x": 4}`)))
	if w.Code != nethttp.StatusServiceUnavailable {
		t.Fatalf("unexpected code after close: %d", w.Code)
	}
}
