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

package s3

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/mirrorworld/hstore"
	"github.com/pkg/errors"
)

// ErrArchiverClosed is returned by Finalize after Close.
const ErrArchiverClosed = hstore.Error("archiver is closed")

// Archiver is an hstore.Finalizer which uploads each finalized recording to
// s3://<bucket>/<prefix><file name>. Uploads run on a background goroutine
// so that stopping a recording doesn't wait for the network.
type Archiver struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
	region   string
	remove   bool
	log      hstore.Logger
	stats    hstore.Statter

	lock   sync.Mutex
	closed bool
	queue  chan hstore.Recording
	done   chan struct{}

	errLock sync.Mutex
	errs    []error
}

// ArchiverOption is a functional option for NewArchiver.
type ArchiverOption func(a *Archiver)

// OptArchiverUploader sets the uploader instead of creating one from the
// default AWS session.
func OptArchiverUploader(u s3manageriface.UploaderAPI) ArchiverOption {
	return func(a *Archiver) {
		a.uploader = u
	}
}

// OptArchiverRegion sets the AWS region.
func OptArchiverRegion(region string) ArchiverOption {
	return func(a *Archiver) {
		a.region = region
	}
}

// OptArchiverPrefix sets the prefix of object keys.
func OptArchiverPrefix(prefix string) ArchiverOption {
	return func(a *Archiver) {
		a.prefix = prefix
	}
}

// OptArchiverRemove deletes the local file after a successful upload.
func OptArchiverRemove(remove bool) ArchiverOption {
	return func(a *Archiver) {
		a.remove = remove
	}
}

// OptArchiverQueue sets how many recordings may wait for upload before
// Finalize blocks.
func OptArchiverQueue(n int) ArchiverOption {
	return func(a *Archiver) {
		if n >= 0 {
			a.queue = make(chan hstore.Recording, n)
		}
	}
}

// OptArchiverLogger sets the logger.
func OptArchiverLogger(l hstore.Logger) ArchiverOption {
	return func(a *Archiver) {
		a.log = l
	}
}

// OptArchiverStatter sets the stats collector.
func OptArchiverStatter(s hstore.Statter) ArchiverOption {
	return func(a *Archiver) {
		a.stats = s
	}
}

// NewArchiver creates an Archiver uploading to bucket and starts its upload
// goroutine.
func NewArchiver(bucket string, opts ...ArchiverOption) (*Archiver, error) {
	if bucket == "" {
		return nil, errors.New("archiver needs a bucket")
	}
	a := &Archiver{
		bucket: bucket,
		log:    hstore.NopLogger{},
		stats:  hstore.NopStatter{},
		queue:  make(chan hstore.Recording, 16),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.uploader == nil {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(a.region)},
		)
		if err != nil {
			return nil, errors.Wrap(err, "getting new session")
		}
		a.uploader = s3manager.NewUploader(sess)
	}
	go a.run()
	return a, nil
}

// Key returns the object key a recording is uploaded to.
func (a *Archiver) Key(rec hstore.Recording) string {
	return a.prefix + filepath.Base(rec.FinalPath)
}

// Finalize implements hstore.Finalizer by queueing rec for upload.
func (a *Archiver) Finalize(rec hstore.Recording) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.closed {
		return errors.Wrapf(ErrArchiverClosed, "archiving recording %s", rec.ID)
	}
	a.queue <- rec
	return nil
}

func (a *Archiver) run() {
	defer close(a.done)
	for rec := range a.queue {
		if err := a.upload(rec); err != nil {
			a.stats.Count("archive_errors", 1, 1)
			a.log.Printf("archiving recording %s: %v", rec.ID, err)
			a.errLock.Lock()
			a.errs = append(a.errs, err)
			a.errLock.Unlock()
			continue
		}
		a.stats.Count("archived", 1, 1)
	}
}

func (a *Archiver) upload(rec hstore.Recording) error {
	f, err := os.Open(rec.FinalPath)
	if err != nil {
		return errors.Wrap(err, "opening recording")
	}
	defer f.Close()
	key := a.Key(rec)
	out, err := a.uploader.Upload(&s3manager.UploadInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   f,
		Metadata: map[string]*string{
			"Recording-Id": aws.String(rec.ID),
		},
	})
	if err != nil {
		return errors.Wrapf(err, "uploading '%s' to s3://%s/%s", rec.FinalPath, a.bucket, key)
	}
	a.log.Printf("archived recording %s to %s", rec.ID, out.Location)
	if a.remove {
		if err := os.Remove(rec.FinalPath); err != nil {
			return errors.Wrap(err, "removing archived recording")
		}
	}
	return nil
}

// Close waits for queued uploads to finish. It returns the upload errors
// seen since the Archiver was created.
func (a *Archiver) Close() error {
	a.lock.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.lock.Unlock()
	<-a.done

	a.errLock.Lock()
	defer a.errLock.Unlock()
	if len(a.errs) == 0 {
		return nil
	}
	msgs := make([]string, len(a.errs))
	for i, err := range a.errs {
		msgs[i] = err.Error()
	}
	return errors.Errorf("%d uploads failed: %s", len(a.errs), strings.Join(msgs, "; "))
}
