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
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Kind identifies which variant a Value holds.
type Kind uint8

// The closed set of Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{"null", "bool", "int", "float", "string", "array", "object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is the tagged variant for everything that can appear in a document.
// It is satisfied only by Null, B, I64, F64, S, Array and Object, so a type
// switch over those types is exhaustive.
type Value interface {
	Kind() Kind
	isValue()
}

// Document is a structured record which can be walked key by key. Resolve
// depends only on this interface.
type Document interface {
	// Field returns the value stored under key, and false if there is none.
	Field(key string) (Value, bool)
	// Keys returns the keys of the document in a stable order.
	Keys() []string
}

// Null is an explicit JSON null.
type Null struct{}

// B is a boolean.
type B bool

// I64 is an integer. Integers stay distinct from floats all the way to the
// store.
type I64 int64

// F64 is a floating point number.
type F64 float64

// S is a string.
type S string

// Array is an ordered list of values. It is not necessarily homogeneous.
type Array []Value

// Object is a nested document.
type Object map[string]Value

func (Null) Kind() Kind   { return KindNull }
func (B) Kind() Kind      { return KindBool }
func (I64) Kind() Kind    { return KindInt }
func (F64) Kind() Kind    { return KindFloat }
func (S) Kind() Kind      { return KindString }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

func (Null) isValue()   {}
func (B) isValue()      {}
func (I64) isValue()    {}
func (F64) isValue()    {}
func (S) isValue()      {}
func (Array) isValue()  {}
func (Object) isValue() {}

// Field implements Document.
func (o Object) Field(key string) (Value, bool) {
	v, ok := o[key]
	return v, ok
}

// Keys implements Document. Keys are sorted.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ElemKind returns the kind shared by every element of the array. It returns
// false if the array is empty or holds more than one kind.
func (a Array) ElemKind() (Kind, bool) {
	if len(a) == 0 {
		return KindNull, false
	}
	k := a[0].Kind()
	for _, v := range a[1:] {
		if v.Kind() != k {
			return k, false
		}
	}
	return k, true
}

// ParseDocument is the default Parser. It converts decoded data into a
// Document, which must be an object at the top level.
func ParseDocument(data interface{}) (Document, error) {
	v, err := ValueOf(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, errors.Errorf("document must be an object, got %v", v.Kind())
	}
	return obj, nil
}

// ValueOf converts decoded data into a Value. It understands the output of
// encoding/json (preferably decoded with UseNumber so integers survive),
// generic avro records, and arbitrary Go maps, slices and scalars.
func ValueOf(data interface{}) (Value, error) {
	switch d := data.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return d, nil
	case bool:
		return B(d), nil
	case string:
		return S(d), nil
	case json.Number:
		return numberValue(d)
	case float64:
		return F64(d), nil
	case float32:
		return F64(d), nil
	case int:
		return I64(d), nil
	case int64:
		return I64(d), nil
	case int32:
		return I64(d), nil
	case time.Time:
		return S(d.Format(time.RFC3339Nano)), nil
	case []byte:
		return S(d), nil
	case []interface{}:
		arr := make(Array, len(d))
		for i, item := range d {
			v, err := ValueOf(item)
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}
			arr[i] = v
		}
		return arr, nil
	case map[string]interface{}:
		obj := make(Object, len(d))
		for k, item := range d {
			v, err := ValueOf(item)
			if err != nil {
				return nil, errors.Wrapf(err, "key '%s'", k)
			}
			obj[k] = v
		}
		return obj, nil
	}
	return reflectValue(deref(reflect.ValueOf(data)))
}

func reflectValue(val reflect.Value) (Value, error) {
	switch val.Kind() {
	case reflect.Invalid:
		return Null{}, nil
	case reflect.Bool:
		return B(val.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return I64(val.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := val.Uint()
		if u > math.MaxInt64 {
			return F64(u), nil
		}
		return I64(u), nil
	case reflect.Float32, reflect.Float64:
		return F64(val.Float()), nil
	case reflect.String:
		return S(val.String()), nil
	case reflect.Slice, reflect.Array:
		arr := make(Array, val.Len())
		for i := 0; i < val.Len(); i++ {
			v, err := ValueOf(val.Index(i).Interface())
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}
			arr[i] = v
		}
		return arr, nil
	case reflect.Map:
		obj := make(Object, val.Len())
		iter := val.MapRange()
		for iter.Next() {
			k := deref(iter.Key())
			if k.Kind() != reflect.String {
				return nil, errors.Errorf("unsupported map key kind '%v'", k.Kind())
			}
			v, err := ValueOf(iter.Value().Interface())
			if err != nil {
				return nil, errors.Wrapf(err, "key '%s'", k.String())
			}
			obj[k.String()] = v
		}
		return obj, nil
	}
	return nil, errors.Errorf("unsupported kind '%v' in document", val.Kind())
}

func numberValue(n json.Number) (Value, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return I64(i), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing number '%s'", s)
	}
	return F64(f), nil
}

// deref dereferences pointers and gets concrete values from interfaces.
func deref(val reflect.Value) reflect.Value {
	knd := val.Kind()
	i := 0
	for knd == reflect.Ptr || knd == reflect.Interface {
		val = val.Elem()
		knd = val.Kind()
		i++
		if i > 100 {
			panic(fmt.Sprintf("deref loop with: %#v", val.Interface()))
		}
	}
	return val
}
