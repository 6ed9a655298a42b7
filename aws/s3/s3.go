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

// Package s3 moves data between recorders and S3: RawSource reads JSON
// objects from a bucket so they can be replayed, and Archiver uploads
// finished recordings.
package s3

import (
	"io"
	"sync/atomic"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/mirrorworld/hstore"
	"github.com/pkg/errors"
)

// RawSource is an hstore.RawSource which reads the objects of a bucket one
// after another.
type RawSource struct {
	bucket string
	prefix string
	region string

	s3      s3iface.S3API
	objects []*s3.Object
	objIdx  *uint64
}

// RawSourceOption is a functional option for NewRawSource.
type RawSourceOption func(rs *RawSource)

// OptRawClient makes the RawSource use client instead of creating one from
// the default AWS session.
func OptRawClient(client s3iface.S3API) RawSourceOption {
	return func(rs *RawSource) {
		rs.s3 = client
	}
}

// NewRawSource lists the objects in bucket whose key starts with prefix.
func NewRawSource(region, bucket, prefix string, opts ...RawSourceOption) (*RawSource, error) {
	idx := uint64(0)
	rs := &RawSource{
		region: region,
		bucket: bucket,
		prefix: prefix,

		objIdx: &idx,
	}
	for _, opt := range opts {
		opt(rs)
	}
	if rs.s3 == nil {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(rs.region)},
		)
		if err != nil {
			return nil, errors.Wrap(err, "getting new session")
		}
		rs.s3 = s3.New(sess)
	}
	err := rs.s3.ListObjectsV2Pages(&s3.ListObjectsV2Input{Bucket: aws.String(rs.bucket), Prefix: aws.String(rs.prefix)},
		func(page *s3.ListObjectsV2Output, last bool) bool {
			rs.objects = append(rs.objects, page.Contents...)
			return true
		})
	if err != nil {
		return nil, errors.Wrap(err, "listing objects")
	}
	return rs, nil
}

type objReader struct {
	name string
	body io.ReadCloser
}

func (o *objReader) Read(buf []byte) (n int, err error) {
	return o.body.Read(buf)
}

func (o *objReader) Close() error {
	return o.body.Close()
}

func (o *objReader) Name() string {
	return o.name
}

// NextReader implements hstore.RawSource.
func (rs *RawSource) NextReader() (hstore.NamedReadCloser, error) {
	idx := atomic.AddUint64(rs.objIdx, 1) - 1
	if int(idx) >= len(rs.objects) {
		return nil, io.EOF
	}
	obj := rs.objects[idx]

	result, err := rs.s3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(rs.bucket),
		Key:    aws.String(*obj.Key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", *obj.Key)
	}
	return &objReader{name: *obj.Key, body: result.Body}, nil
}
