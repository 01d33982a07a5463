package anydb

import (
	log "log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/sharedcode/anydb/internal/metadata"
	"github.com/sharedcode/anydb/internal/mmapio"
	"github.com/sharedcode/anydb/metrics"
	"github.com/sharedcode/anydb/region"
)

const dataFileName = "anydb.data"

// Database owns the data and metadata files in one directory, plus the
// free-space map and region table built over them. A Database is an owned
// value, never a package-level singleton: callers construct one per
// directory via Open and are responsible for Close.
type Database struct {
	mu sync.Mutex // serializes Flush/Compact against each other (spec §5, §9)

	dir     string
	session SessionID
	data    *mmapio.File
	meta    *metadata.Store
	regions *region.Manager
	met     *metrics.Recorder

	lastDataLen int64 // data file length observed as of the last successful Flush
}

// Option configures a Database at Open time.
type Option func(*options)

type options struct {
	metrics *metrics.Recorder
}

// WithMetrics registers and enables Prometheus instrumentation for the
// opened Database (see package metrics).
func WithMetrics() Option {
	return func(o *options) { o.metrics = metrics.New() }
}

// Open opens (or creates, if dir is empty/absent) a database rooted at dir,
// rebuilding its region table from the metadata file's on-disk entries.
func Open(dir string, opts ...Option) (*Database, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, NewError(Io, err, dir)
	}

	meta, entries, corrupt, err := metadata.Open(dir)
	if err != nil {
		return nil, err
	}

	data, err := mmapio.Open(filepath.Join(dir, dataFileName), 0)
	if err != nil {
		meta.Close()
		return nil, err
	}

	if len(corrupt) > 0 {
		log.Warn("anydb: recovered corrupt metadata entries as committed holes", "dir", dir, "count", len(corrupt))
	}

	regions := region.NewManager(data, meta, entries, corrupt, o.metrics)
	session := NewSessionID()
	log.Debug("anydb: opened", "dir", dir, "session", session)
	return &Database{
		dir:         dir,
		session:     session,
		data:        data,
		meta:        meta,
		regions:     regions,
		met:         o.metrics,
		lastDataLen: data.Len(),
	}, nil
}

// Regions returns the region manager backing this database. Package vec (and
// any other storage layer built atop raw regions) uses this to create,
// read, and write named regions.
func (d *Database) Regions() *region.Manager { return d.regions }

// Dir returns the directory this database was opened from.
func (d *Database) Dir() string { return d.dir }

// Session returns an identifier unique to this Open call, useful for
// correlating log lines when more than one process has the same directory
// open.
func (d *Database) Session() SessionID { return d.session }

// Flush performs the durability boundary described in spec §5, in order:
// (1) msync the data mapping; (2) msync the metadata mapping; (3) if the
// data file grew since the last flush, fsync the containing directory so
// the new length survives a crash; (4) promote pending holes to committed.
func (d *Database) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.regions.Sync(); err != nil {
		return err
	}
	if err := d.meta.Sync(); err != nil {
		return err
	}

	newLen := d.data.Len()
	if newLen > d.lastDataLen {
		if err := d.fsyncDir(); err != nil {
			return err
		}
		d.lastDataLen = newLen
	}

	d.regions.PromotePending()
	d.met.Flush()
	log.Debug("anydb: flush complete", "dir", d.dir, "session", d.session, "data_len", newLen)
	return nil
}

// Compact punches every committed hole in the data file, reclaiming disk
// space without shrinking the file's apparent length. It holds the database
// mutex exclusively for its duration (spec §9, resolving the "may compact
// run concurrently with writes" open question in favor of exclusivity).
func (d *Database) Compact() (bytesReclaimed int64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bytesReclaimed, err = d.regions.Compact()
	if err != nil {
		return bytesReclaimed, err
	}
	d.met.Compaction(bytesReclaimed)
	log.Debug("anydb: compact complete", "dir", d.dir, "bytes_reclaimed", bytesReclaimed)
	return bytesReclaimed, nil
}

// Close releases the data and metadata mappings and their file descriptors.
// It does not flush; callers that need durable state must call Flush first.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dataErr := d.data.Close()
	metaErr := d.meta.Close()
	if dataErr != nil {
		return dataErr
	}
	return metaErr
}

func (d *Database) fsyncDir() error {
	f, err := os.Open(d.dir)
	if err != nil {
		return NewError(Io, err, d.dir)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return NewError(Io, err, d.dir)
	}
	return nil
}
