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

// Package inspect prints the layout of a recording file.
package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mirrorworld/hstore/boltdb"
	"github.com/pkg/errors"
)

// Dataset is one dataset of a recording.
type Dataset struct {
	Group string `json:"group"`
	boltdb.Info
}

// Shape renders the dataset shape, (rows) or (rows, cols).
func (d Dataset) Shape() string {
	if d.Cols == 0 {
		return fmt.Sprintf("(%d)", d.Rows)
	}
	return fmt.Sprintf("(%d, %d)", d.Rows, d.Cols)
}

// Summary describes a whole recording.
type Summary struct {
	Path     string        `json:"path"`
	Size     Bytes         `json:"size"`
	Header   boltdb.Header `json:"header"`
	Groups   []string      `json:"groups"`
	Datasets []Dataset     `json:"datasets"`
}

// Summarize reads the layout of the recording at path without modifying it.
func Summarize(path string) (*Summary, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "getting file size")
	}
	store, err := boltdb.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	sum := &Summary{Path: path, Size: Bytes(fi.Size())}
	sum.Header, err = store.Header()
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	sum.Groups, err = store.Groups()
	if err != nil {
		return nil, errors.Wrap(err, "listing groups")
	}
	for _, name := range sum.Groups {
		g, err := store.Group(name)
		if err != nil {
			return nil, errors.Wrapf(err, "opening group '%s'", name)
		}
		names, err := g.Datasets()
		if err != nil {
			return nil, errors.Wrapf(err, "listing datasets of '%s'", name)
		}
		for _, dname := range names {
			info, err := g.Dataset(dname).Info()
			if err != nil {
				return nil, err
			}
			sum.Datasets = append(sum.Datasets, Dataset{Group: name, Info: info})
		}
	}
	return sum, nil
}

// Main prints the groups and datasets of a recording.
type Main struct {
	Path string `help:"Recording file to inspect."`
	JSON bool   `help:"Print JSON instead of a table."`

	stdout io.Writer
}

// NewMain gets a new Main.
func NewMain() *Main {
	return &Main{stdout: os.Stdout}
}

// SetOutput changes where Run prints to.
func (m *Main) SetOutput(w io.Writer) { m.stdout = w }

// Run prints the summary.
func (m *Main) Run() error {
	if m.Path == "" {
		return errors.New("a path is required")
	}
	sum, err := Summarize(m.Path)
	if err != nil {
		return errors.Wrapf(err, "inspecting '%s'", m.Path)
	}
	if m.JSON {
		enc := json.NewEncoder(m.stdout)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(sum), "encoding summary")
	}
	return Print(m.stdout, sum)
}

// Print writes a summary as a table.
func Print(w io.Writer, sum *Summary) error {
	fmt.Fprintf(w, "%s: %s v%d, %v, created %s\n", sum.Path, sum.Header.Format, sum.Header.Version, sum.Size, sum.Header.Created.Format("2006-01-02 15:04:05"))
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tDATASET\tTYPE\tSHAPE")
	shown := make(map[string]bool)
	for _, ds := range sum.Datasets {
		shown[ds.Group] = true
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ds.Group, ds.Name, ds.Type, ds.Shape())
	}
	for _, g := range sum.Groups {
		if !shown[g] && !hasChild(sum.Groups, g) {
			fmt.Fprintf(tw, "%s\t-\t-\t-\n", g)
		}
	}
	return errors.Wrap(tw.Flush(), "writing table")
}

func hasChild(groups []string, g string) bool {
	for _, other := range groups {
		if strings.HasPrefix(other, g+"/") {
			return true
		}
	}
	return false
}
