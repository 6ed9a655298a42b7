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
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/leveldb"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// RecordingsMain lists the sessions remembered by a catalog.
type RecordingsMain struct {
	Catalog string `help:"LevelDB catalog directory written by the recording commands."`
	State   string `help:"Only list recordings in this state: recording, finalized or failed."`

	stdout io.Writer
}

// Run prints the catalog as a table.
func (m *RecordingsMain) Run() error {
	if m.Catalog == "" {
		return errors.New("a catalog directory is required")
	}
	cat, err := leveldb.NewCatalog(m.Catalog)
	if err != nil {
		return errors.Wrap(err, "opening catalog")
	}
	defer cat.Close()
	recs, err := cat.Recordings()
	if err != nil {
		return errors.Wrap(err, "listing recordings")
	}
	tw := tabwriter.NewWriter(m.stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tSTARTED\tDURATION\tFILE\tERROR")
	for _, rec := range recs {
		if m.State != "" && rec.State != m.State {
			continue
		}
		dur := "-"
		if !rec.Stopped.IsZero() {
			dur = rec.Stopped.Sub(rec.Started).Round(time.Millisecond).String()
		}
		path := rec.FinalPath
		if rec.State != hstore.StateFinalized {
			path = rec.TempPath
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", rec.ID, rec.State, rec.Started.Format(time.RFC3339), dur, path, rec.Error)
	}
	return errors.Wrap(tw.Flush(), "writing table")
}

// NewRecordingsCommand returns a command listing the session catalog.
func NewRecordingsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	m := &RecordingsMain{stdout: stdout}
	com := &cobra.Command{
		Use:   "recordings",
		Short: "recordings - list the sessions of a catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return m.Run()
		},
	}
	if err := addFlags(com.Flags(), m); err != nil {
		panic(err)
	}
	return com
}

func init() {
	subcommandFns["recordings"] = NewRecordingsCommand
}
