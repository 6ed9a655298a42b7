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
	"sort"

	"github.com/pkg/errors"
)

// Config is the recorder configuration shared by every command.
type Config struct {
	FolderPath      string
	KeypathSep      string
	Keypaths        map[string][]string
	SkipDefaultOnly []string
	Extension       string
	CatalogPath     string
	ChunkRows       int
	NoSync          bool
}

// NewConfig returns a Config with the default values.
func NewConfig() *Config {
	return &Config{
		FolderPath:      DefaultFolderPath,
		KeypathSep:      DefaultSeparator,
		Keypaths:        make(map[string][]string),
		SkipDefaultOnly: []string{"coordinator"},
		Extension:       DefaultExtension,
		ChunkRows:       1024,
	}
}

// Registry builds a Registry from the separator and keypaths in the
// configuration. Groups are added in sorted order.
func (c *Config) Registry() (*Registry, error) {
	reg := NewRegistry()
	if c.KeypathSep != "" {
		if err := reg.SetSeparator(c.KeypathSep); err != nil {
			return nil, errors.Wrap(err, "setting keypath separator")
		}
	}
	groups := make([]string, 0, len(c.Keypaths))
	for group := range c.Keypaths {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		for _, path := range c.Keypaths[group] {
			if err := reg.AppendField(group, path); err != nil {
				return nil, errors.Wrap(err, "setting keypaths")
			}
		}
	}
	return reg, nil
}
