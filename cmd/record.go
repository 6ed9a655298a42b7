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
	"time"

	"github.com/jaffee/commandeer"
	"github.com/mirrorworld/hstore/recorder"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// rootShorthands are taken by the persistent flags of the root command.
var rootShorthands = map[string]bool{"c": true}

type runner interface {
	Run() error
}

// newRecordCommand wraps a Main embedding recorder.Main in a cobra command.
// Flags come from the struct fields of rm and of main; the keypath table of
// the config file is added to rm before running.
func newRecordCommand(use, short, long string, main runner, rm *recorder.Main, stderr io.Writer) *cobra.Command {
	com := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, args []string) error {
			rm.AddKeypaths(keypathTable)
			start := time.Now()
			if err := main.Run(); err != nil {
				return err
			}
			fmt.Fprintf(stderr, "Done: %v\n", time.Since(start))
			return nil
		},
	}
	if err := addFlags(com.Flags(), rm); err != nil {
		panic(err)
	}
	if err := addFlags(com.Flags(), main); err != nil {
		panic(err)
	}
	return com
}

// addFlags defines the flags of main on fs. commandeer picks shorthands
// afresh on every call, so a shorthand already used in fs or by the root
// command is dropped.
func addFlags(fs *pflag.FlagSet, main interface{}) error {
	scratch := pflag.NewFlagSet("", pflag.ContinueOnError)
	if err := commandeer.Flags(scratch, main); err != nil {
		return err
	}
	scratch.VisitAll(func(f *pflag.Flag) {
		if f.Shorthand != "" && (rootShorthands[f.Shorthand] || fs.ShorthandLookup(f.Shorthand) != nil) {
			f.Shorthand = ""
		}
		fs.AddFlag(f)
	})
	return nil
}
