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

// Package file provides Sources reading JSON from a file or from every file
// in a directory.
package file

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/json"
	"github.com/pkg/errors"
)

// Source reads the JSON values of one or more files. Files are read in name
// order.
type Source struct {
	rawSource     *RawSource
	jsonOpts      []json.SrcOption
	topicFromName bool
	records       chan record
	done          chan struct{}
}

// SrcOption is a functional option for NewSource.
type SrcOption func(s *Source) error

// OptSrcPath sets the path name for the file or directory to use for source
// data.
func OptSrcPath(pathname string) SrcOption {
	return func(s *Source) (err error) {
		s.rawSource, err = NewRawSource(pathname)
		if err != nil {
			return errors.Wrap(err, "getting raw source")
		}
		return nil
	}
}

// OptSrcTopic publishes every record on topic.
func OptSrcTopic(topic string) SrcOption {
	return func(s *Source) error {
		s.jsonOpts = append(s.jsonOpts, json.OptTopic(topic))
		return nil
	}
}

// OptSrcTopicFromName publishes the records of each file on a topic named
// after the file, without its extension. sensor.json feeds the topic
// "sensor".
func OptSrcTopicFromName() SrcOption {
	return func(s *Source) error {
		s.topicFromName = true
		return nil
	}
}

// OptSrcEnvelopeKeys sets the keys of {topic, message} envelopes.
func OptSrcEnvelopeKeys(topicKey, messageKey string) SrcOption {
	return func(s *Source) error {
		s.jsonOpts = append(s.jsonOpts, json.OptEnvelopeKeys(topicKey, messageKey))
		return nil
	}
}

func topicFromName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func (s *Source) run() {
	defer close(s.records)
	reader, err := s.rawSource.NextReader()
	for ; err == nil; reader, err = s.rawSource.NextReader() {
		opts := s.jsonOpts
		if s.topicFromName {
			opts = append(opts[:len(opts):len(opts)], json.OptTopic(topicFromName(reader.Name())))
		}
		src := json.NewSource(reader, opts...)
		for {
			msg, err := src.Record()
			if err == io.EOF {
				break
			}
			r := record{msg: msg}
			if err != nil {
				r.err = errors.Wrapf(err, "reading '%s'", reader.Name())
			}
			select {
			case s.records <- r:
			case <-s.done:
				reader.Close()
				return
			}
			if err != nil {
				reader.Close()
				return
			}
		}
		reader.Close()
	}
	if err != io.EOF {
		select {
		case s.records <- record{err: errors.Wrap(err, "getting next reader")}:
		case <-s.done:
		}
	}
}

// NewSource gets a new file source which reads json data from a file or all
// files in a directory.
func NewSource(opts ...SrcOption) (*Source, error) {
	s := &Source{
		records: make(chan record, 100),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		err := opt(s)
		if err != nil {
			return nil, err
		}
	}
	if s.rawSource == nil {
		return nil, errors.New("no path given")
	}
	go s.run()
	return s, nil
}

// Record implements hstore.Source.
func (s *Source) Record() (hstore.Message, error) {
	rec, ok := <-s.records
	if !ok {
		return hstore.Message{}, io.EOF
	}
	return rec.msg, rec.err
}

// Close stops reading. Record returns io.EOF once the buffered records have
// been consumed.
func (s *Source) Close() error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	return nil
}

type record struct {
	msg hstore.Message
	err error
}

// RawSource is an hstore.RawSource which opens files one at a time.
type RawSource struct {
	files   []string
	fileIdx *uint64
}

// NewRawSource gets a RawSource for the file at pathname or, if it is a
// directory, for each regular file in it. Hidden files are skipped.
func NewRawSource(pathname string) (*RawSource, error) {
	fileIdx := uint64(0)
	s := &RawSource{
		fileIdx: &fileIdx,
	}
	info, err := os.Stat(pathname)
	if err != nil {
		return nil, errors.Wrap(err, "statting path")
	}
	if info.IsDir() {
		entries, err := os.ReadDir(pathname)
		if err != nil {
			return nil, errors.Wrap(err, "reading directory")
		}
		s.files = make([]string, 0, len(entries))
		for _, entry := range entries {
			if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			s.files = append(s.files, filepath.Join(pathname, entry.Name()))
		}
	} else {
		s.files = []string{pathname}
	}
	return s, nil
}

type namedFile struct {
	*os.File
}

func (m *namedFile) Name() string {
	return filepath.Base(m.File.Name())
}

// NextReader implements hstore.RawSource.
func (s *RawSource) NextReader() (hstore.NamedReadCloser, error) {
	idx := atomic.AddUint64(s.fileIdx, 1) - 1
	if int(idx) >= len(s.files) {
		return nil, io.EOF
	}

	file, err := os.Open(s.files[idx])
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", s.files[idx])
	}
	return &namedFile{file}, nil
}
