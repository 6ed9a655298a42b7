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

package hstore_test

import (
	"testing"

	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/test"
)

func TestRegistryAppendField(t *testing.T) {
	reg := hstore.NewRegistry()
	test.ErrNil(t, reg.AppendField("sensor", "x"), "append x")
	test.ErrNil(t, reg.AppendField("sensor", "x"), "append x again")
	test.ErrNil(t, reg.AppendField("sensor", "pos.lat"), "append pos.lat")

	fields, err := reg.FieldsFor("sensor")
	test.ErrNil(t, err, "FieldsFor")
	test.MustBe(t, []string{"timecode", "timestamp", "hostname", "x", "x", "pos.lat"}, fields)

	// FieldsFor hands out a copy
	fields[0] = "changed"
	fields, _ = reg.FieldsFor("sensor")
	test.MustBe(t, "timecode", fields[0])

	_, err = reg.FieldsFor("nope")
	test.MustCause(t, err, hstore.ErrUnknownGroup, "unknown group")
	test.MustBe(t, false, reg.Has("nope"))
	test.MustBe(t, true, reg.Has("sensor"))
}

func TestRegistryAppendFieldInvalid(t *testing.T) {
	reg := hstore.NewRegistry()
	test.MustErr(t, reg.AppendField("", "x"), "empty group")
	test.MustErr(t, reg.AppendField("g", ""), "empty path")
	test.MustErr(t, reg.AppendField("g", "a/b"), "hierarchy separator in path")
	test.MustBe(t, false, reg.Has("g"))
}

func TestRegistrySeparator(t *testing.T) {
	reg := hstore.NewRegistry()
	test.MustBe(t, ".", reg.Separator())
	test.MustCause(t, reg.SetSeparator(""), hstore.ErrBadSeparator, "empty")
	test.MustCause(t, reg.SetSeparator("/"), hstore.ErrBadSeparator, "slash")
	test.MustCause(t, reg.SetSeparator("a/"), hstore.ErrBadSeparator, "contains slash")
	test.ErrNil(t, reg.SetSeparator("::"), "set")
	test.MustBe(t, "::", reg.Separator())
}

func TestRegistrySeal(t *testing.T) {
	reg := hstore.NewRegistry()
	test.ErrNil(t, reg.AppendField("g", "a"), "append")
	reg.Seal()
	test.MustCause(t, reg.AppendField("g", "b"), hstore.ErrRegistrySealed, "append after seal")
	test.MustCause(t, reg.SetSeparator(":"), hstore.ErrRegistrySealed, "separator after seal")
	fields, err := reg.FieldsFor("g")
	test.ErrNil(t, err, "FieldsFor")
	test.MustBe(t, 4, len(fields))
}

func TestRegistrySummary(t *testing.T) {
	reg := hstore.NewRegistry()
	test.ErrNil(t, reg.AppendField("b", "y"), "append")
	test.ErrNil(t, reg.AppendField("a", "x"), "append")
	test.MustBe(t, "a.timecode, a.timestamp, a.hostname, a.x, b.timecode, b.timestamp, b.hostname, b.y (total: 8)", reg.Summary())
	test.MustBe(t, []string{"a", "b"}, reg.Groups())
}

func TestConfigRegistry(t *testing.T) {
	conf := hstore.NewConfig()
	conf.KeypathSep = "::"
	conf.Keypaths["sensor"] = []string{"pos::lat", "x"}
	reg, err := conf.Registry()
	test.ErrNil(t, err, "Registry")
	fields, err := reg.FieldsFor("sensor")
	test.ErrNil(t, err, "FieldsFor")
	test.MustBe(t, []string{"timecode", "timestamp", "hostname", "pos::lat", "x"}, fields)

	conf.KeypathSep = "/"
	if _, err := conf.Registry(); err == nil {
		t.Fatal("expected error for bad separator")
	}
}
