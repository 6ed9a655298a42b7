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

// Package hstore records streams of JSON-like documents into appendable,
// self-describing hierarchical files. It contains the core types and
// interfaces; concrete storage, catalogs and transports live in
// sub-packages.
//
// A recording journey has these stages.
//
// 1. Source
//
//    A Source produces Messages, each one a topic plus some decoded data
//    (typically a map[string]interface{} from encoding/json). Sources know
//    nothing about schemas or files - they only get data out of files, HTTP
//    requests, Kafka topics or NATS subjects, one piece at a time.
//
// 2. Parser
//
//    The Parser turns decoded data into a Document: a closed, type-safe tree of
//    Values (Null, B, I64, F64, S, Array, Object). ParseDocument handles the
//    output of encoding/json (with UseNumber), avro generic records and plain
//    Go maps and slices. Keeping integers and floats apart here is what allows
//    datasets to lock in their element type later.
//
// 3. Router
//
//    The Router owns the recording session. It interprets the lifecycle
//    commands embedded in the document stream ({"command": "start", "id": 42}
//    and {"command": "stop"}), and while a session is active it looks up the
//    Registry for the topic, resolves every configured keypath in the Document
//    and appends each present value to the matching dataset of the open Store.
//    Files are written under a temporary name (leading underscore) and renamed
//    only after a successful close, so a file without the marker is always
//    complete.
//
// 4. Store
//
//    A Store is one open recording file. Groups map to topics, datasets map to
//    keypaths. The first value appended to a dataset fixes its element type
//    and row width; later values must match exactly. The boltdb sub-package
//    provides the file implementation.
//
// The Ingester ties a Source to a Router and runs the loop on a single
// goroutine, so records are persisted in exactly the order they arrive.
package hstore
