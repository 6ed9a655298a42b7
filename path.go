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
	"strconv"
	"strings"
)

// Keys of the extended JSON wrappers which Resolve unwraps.
const (
	DateKey       = "$date"
	NumberLongKey = "$numberLong"
)

// SplitPath splits a keypath into its segments.
func SplitPath(path, sep string) []string {
	return strings.Split(path, sep)
}

// Resolve walks doc along the keypath and returns the value found at its
// end. It returns false if any segment is missing, or if a segment other
// than the last one does not hold a nested document. Not finding a value is
// a normal outcome, not an error.
//
// Values wrapped as {"$date": x} are unwrapped to x, so timestamps produced
// by BSON/extended JSON serializers are stored like any other value.
func Resolve(doc Document, path, sep string) (Value, bool) {
	if doc == nil {
		return nil, false
	}
	segments := SplitPath(path, sep)
	cur := doc
	for i, seg := range segments {
		val, ok := cur.Field(seg)
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return unwrapDate(val), true
		}
		next, ok := val.(Document)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

func unwrapDate(val Value) Value {
	obj, ok := val.(Object)
	if !ok || len(obj) != 1 {
		return val
	}
	inner, ok := obj[DateKey]
	if !ok {
		return val
	}
	if long, ok := inner.(Object); ok && len(long) == 1 {
		if s, ok := long[NumberLongKey].(S); ok {
			if i, err := strconv.ParseInt(string(s), 10, 64); err == nil {
				return I64(i)
			}
		}
	}
	return inner
}
