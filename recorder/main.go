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

// Package recorder wires a Source to a Router writing bbolt files, along with
// the optional catalog, archiver, stats and status endpoint. Each transport
// package embeds Main and supplies its Source.
package recorder

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mirrorworld/hstore"
	"github.com/mirrorworld/hstore/aws/s3"
	"github.com/mirrorworld/hstore/boltdb"
	"github.com/mirrorworld/hstore/leveldb"
	"github.com/mirrorworld/hstore/promstat"
	"github.com/mirrorworld/hstore/termstat"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Stats backends.
const (
	StatsPrometheus = "prometheus"
	StatsTerm       = "term"
	StatsNone       = "none"
)

// Main holds the configuration shared by every recording command.
type Main struct {
	FolderPath      string        `help:"Folder recordings are written to."`
	KeypathSep      string        `help:"Separator of nested keys in keypaths."`
	Keypaths        []string      `help:"Keypaths to record, as group:path. Groups may also be configured as a [keypaths] table in the config file."`
	SkipDefaultOnly []string      `help:"Groups whose records are skipped when they carry nothing but timecode, timestamp and hostname."`
	Extension       string        `help:"File extension of recordings."`
	Catalog         string        `help:"LevelDB directory remembering recordings across restarts. Empty keeps them in memory."`
	ChunkRows       int           `help:"Rows per chunk in new datasets."`
	NoSync          bool          `help:"Don't fsync after every append. Faster, but a crash may lose the last records."`
	LockTimeout     time.Duration `help:"How long to wait for a recording file locked by another process."`
	Stats           string        `help:"Stats backend: prometheus, term, or none."`
	StatusBind      string        `help:"Serve /status and /metrics on this address. Empty disables."`
	LogPath         string        `help:"Log file to write to. Empty means stderr."`
	Verbose         bool          `help:"Enable verbose logging."`
	ArchiveBucket   string        `help:"Upload finished recordings to this S3 bucket. Empty disables."`
	ArchivePrefix   string        `help:"Key prefix of uploaded recordings."`
	ArchiveRegion   string        `help:"AWS region of the archive bucket."`
	ArchiveRemove   bool          `help:"Remove local recordings once uploaded."`

	TLS hstore.TLSConfig

	// NewSource is called once everything else is set up.
	NewSource func() (hstore.Source, error) `flag:"-"`

	keypathTable map[string][]string
	stderr       io.Writer

	log      hstore.Logger
	logFile  *os.File
	stats    hstore.Statter
	prom     *promstat.Statter
	term     *termstat.Collector
	catalog  hstore.Catalog
	archiver *s3.Archiver
	router   *hstore.Router
	status   *http.Server
}

// NewMain gets a Main with the default configuration.
func NewMain() *Main {
	return &Main{
		FolderPath:      hstore.DefaultFolderPath,
		KeypathSep:      hstore.DefaultSeparator,
		SkipDefaultOnly: []string{"coordinator"},
		Extension:       hstore.DefaultExtension,
		ChunkRows:       boltdb.DefaultChunkRows,
		LockTimeout:     time.Second,
		Stats:           StatsPrometheus,
		ArchiveRegion:   "us-east-1",
		keypathTable:    make(map[string][]string),
		stderr:          os.Stderr,
	}
}

// AddKeypaths adds the keypaths of a group → paths table, as read from a
// config file.
func (m *Main) AddKeypaths(table map[string][]string) {
	if m.keypathTable == nil {
		m.keypathTable = make(map[string][]string)
	}
	for group, paths := range table {
		m.keypathTable[group] = append(m.keypathTable[group], paths...)
	}
}

// Config collects the keypath and storage settings into an hstore.Config.
func (m *Main) Config() (*hstore.Config, error) {
	conf := hstore.NewConfig()
	conf.FolderPath = m.FolderPath
	conf.KeypathSep = m.KeypathSep
	conf.SkipDefaultOnly = m.SkipDefaultOnly
	conf.Extension = m.Extension
	conf.CatalogPath = m.Catalog
	conf.ChunkRows = m.ChunkRows
	conf.NoSync = m.NoSync
	for group, paths := range m.keypathTable {
		conf.Keypaths[group] = append(conf.Keypaths[group], paths...)
	}
	for _, kp := range m.Keypaths {
		i := strings.Index(kp, ":")
		if i <= 0 || i == len(kp)-1 {
			return nil, errors.Errorf("keypath '%s' is not of the form group:path", kp)
		}
		group, path := kp[:i], kp[i+1:]
		conf.Keypaths[group] = append(conf.Keypaths[group], path)
	}
	return conf, nil
}

// Log returns the logger, available once Setup has run.
func (m *Main) Log() hstore.Logger { return m.log }

// Statter returns the stats collector, available once Setup has run.
func (m *Main) Statter() hstore.Statter { return m.stats }

// TLSConfig builds the TLS configuration of the transport. It is nil unless
// TLS was configured.
func (m *Main) TLSConfig() (*tls.Config, error) {
	conf, err := hstore.GetTLSConfig(&m.TLS, m.log)
	return conf, errors.Wrap(err, "getting TLS config")
}

// Router returns the router, available once Setup has run.
func (m *Main) Router() *hstore.Router { return m.router }

// Setup builds the logger, stats, catalog, archiver and router.
func (m *Main) Setup() (err error) {
	defer func() {
		if err != nil {
			m.teardown()
		}
	}()

	logOut := m.stderr
	if m.LogPath != "" {
		m.logFile, err = os.OpenFile(m.LogPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		logOut = m.logFile
	}
	if m.Verbose {
		m.log = hstore.VerboseLogger{Logger: log.New(logOut, "", log.LstdFlags)}
	} else {
		m.log = hstore.StdLogger{Logger: log.New(logOut, "", log.LstdFlags)}
	}

	switch m.Stats {
	case StatsPrometheus:
		m.prom = promstat.New(promstat.DefaultNamespace)
		m.stats = m.prom
	case StatsTerm:
		m.term = termstat.NewCollector(m.stderr, 2*time.Second)
		m.stats = m.term
	case StatsNone, "":
		m.stats = hstore.NopStatter{}
	default:
		return errors.Errorf("unknown stats backend '%s'", m.Stats)
	}

	conf, err := m.Config()
	if err != nil {
		return errors.Wrap(err, "reading keypaths")
	}
	reg, err := conf.Registry()
	if err != nil {
		return errors.Wrap(err, "building registry")
	}
	if len(reg.Groups()) == 0 {
		return errors.New("no keypaths configured")
	}
	m.log.Printf("keypaths: %s", reg.Summary())

	if conf.CatalogPath != "" {
		m.catalog, err = leveldb.NewCatalog(conf.CatalogPath)
		if err != nil {
			return errors.Wrap(err, "opening catalog")
		}
	} else {
		m.catalog = hstore.NewMapCatalog()
	}

	opts := []hstore.RouterOption{
		hstore.OptRouterDir(conf.FolderPath),
		hstore.OptRouterExtension(conf.Extension),
		hstore.OptRouterSkipDefaultOnly(conf.SkipDefaultOnly...),
		hstore.OptRouterCatalog(m.catalog),
		hstore.OptRouterLogger(m.log),
		hstore.OptRouterStatter(m.stats),
	}
	if m.ArchiveBucket != "" {
		m.archiver, err = s3.NewArchiver(m.ArchiveBucket,
			s3.OptArchiverRegion(m.ArchiveRegion),
			s3.OptArchiverPrefix(m.ArchivePrefix),
			s3.OptArchiverRemove(m.ArchiveRemove),
			s3.OptArchiverLogger(m.log),
			s3.OptArchiverStatter(m.stats),
		)
		if err != nil {
			return errors.Wrap(err, "setting up archiver")
		}
		opts = append(opts, hstore.OptRouterFinalizers(m.archiver))
	}

	open := boltdb.Opener(
		boltdb.OptChunkRows(conf.ChunkRows),
		boltdb.OptNoSync(conf.NoSync),
		boltdb.OptTimeout(m.LockTimeout),
		boltdb.OptLogger(m.log),
	)
	m.router, err = hstore.NewRouter(reg, open, opts...)
	if err != nil {
		return errors.Wrap(err, "creating router")
	}

	if m.StatusBind != "" {
		srv, logger := &http.Server{Addr: m.StatusBind, Handler: m.Handler()}, m.log
		m.status = srv
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("serving status: %v", err)
			}
		}()
	}
	return nil
}

// Handler serves /status and, with Prometheus stats, /metrics.
func (m *Main) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", m.serveStatus)
	if m.prom != nil {
		mux.Handle("/metrics", m.prom.Handler())
	}
	return mux
}

func (m *Main) serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "unsupported method: "+r.Method, http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(m.router.Status()); err != nil {
		m.log.Printf("writing status: %v", err)
	}
}

// Run sets everything up, then records what NewSource produces until the
// source is exhausted or the process is interrupted.
func (m *Main) Run() (err error) {
	if m.NewSource == nil {
		return errors.New("no source configured")
	}
	if err := m.Setup(); err != nil {
		return errors.Wrap(err, "setting up")
	}
	defer func() {
		if terr := m.teardown(); terr != nil && err == nil {
			err = terr
		}
	}()

	src, err := m.NewSource()
	if err != nil {
		return errors.Wrap(err, "getting source")
	}
	ingester := hstore.NewIngester(src, m.router,
		hstore.OptIngestLogger(m.log),
		hstore.OptIngestStatter(m.stats),
	)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	done := make(chan struct{})

	eg := errgroup.Group{}
	eg.Go(func() error {
		defer close(done)
		return errors.Wrap(ingester.Run(), "running ingester")
	})
	eg.Go(func() error {
		select {
		case sig := <-signals:
			m.log.Printf("got %v, shutting down", sig)
			return closeSource(src)
		case <-done:
			return nil
		}
	})
	return eg.Wait()
}

func closeSource(src hstore.Source) error {
	if c, ok := src.(io.Closer); ok {
		return errors.Wrap(c.Close(), "closing source")
	}
	return errors.New("source can't be interrupted")
}

// teardown closes what Setup opened, in reverse order. The router itself is
// closed by the ingester.
func (m *Main) teardown() error {
	var errs []string
	if m.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.status.Shutdown(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "stopping status server").Error())
		}
		cancel()
		m.status = nil
	}
	if m.router != nil {
		if err := m.router.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if m.archiver != nil {
		if err := m.archiver.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "archiving").Error())
		}
		m.archiver = nil
	}
	if m.catalog != nil {
		if err := m.catalog.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		m.catalog = nil
	}
	if m.term != nil {
		m.term.Stop()
	}
	if m.logFile != nil {
		m.logFile.Close()
		m.logFile = nil
	}
	if len(errs) > 0 {
		return errors.Errorf("shutting down: %s", strings.Join(errs, "; "))
	}
	return nil
}
