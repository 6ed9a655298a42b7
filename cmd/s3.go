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

package cmd

import (
	"io"

	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/aws/s3"
	"github.com/mirrorworld/hstore/json"
	"github.com/mirrorworld/hstore/recorder"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ReplayMain replays JSON objects stored in S3 through the recorder.
type ReplayMain struct {
	recorder.Main `flag:"-"`
	Bucket        string `help:"S3 bucket name from which to read objects."`
	Prefix        string `help:"Only objects in the bucket matching this prefix will be used."`
	Region        string `help:"AWS region to use."`
	Topic         string `help:"Group of every record. Empty means records are envelopes carrying their topic."`
	ID            string `help:"Wrap the replay in a single recording with this id."`
	CommandTopic  string `help:"Group on which the wrapping start and stop commands are sent."`
}

// NewReplayMain gets a ReplayMain with default values.
func NewReplayMain() *ReplayMain {
	m := &ReplayMain{
		Main:         *recorder.NewMain(),
		Region:       "us-east-1",
		CommandTopic: "coordinator",
	}
	m.NewSource = m.newSource
	return m
}

func (m *ReplayMain) newSource() (hstore.Source, error) {
	if m.Bucket == "" {
		return nil, errors.New("a bucket is required")
	}
	rs, err := s3.NewRawSource(m.Region, m.Bucket, m.Prefix)
	if err != nil {
		return nil, errors.Wrap(err, "getting s3 source")
	}
	var opts []json.SrcOption
	if m.Topic != "" {
		opts = append(opts, json.OptTopic(m.Topic))
	}
	src := json.NewSourceFromRawSource(rs, opts...)
	if m.ID != "" {
		src = recorder.Session(src, m.CommandTopic, m.ID)
	}
	return src, nil
}

// S3Main is wrapped by NewS3Command and only exported for testing purposes.
var S3Main *ReplayMain

// NewS3Command returns a new cobra command wrapping S3Main.
func NewS3Command(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	S3Main = NewReplayMain()
	return newRecordCommand("s3",
		"s3 - replay line separated json from objects in an S3 bucket",
		`Reads every object under the prefix, in key order, as a stream of JSON
documents and routes them like the import command does.`,
		S3Main, &S3Main.Main, stderr)
}

func init() {
	subcommandFns["s3"] = NewS3Command
}
