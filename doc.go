// Package anydb implements an embedded, single-file storage engine and a
// persistent vector layer on top of it.
//
// The raw store (package region) multiplexes many named, independently
// growing byte regions inside one backing data file, reclaiming space by
// hole-punching and relocating regions, and exposes memory-mapped
// zero-copy reads. The vector layer (package vec) builds mutable, typed,
// optionally compressed vectors on top of the raw store, with sparse
// deletions and stamped rollback.
//
// A Database owns exactly one data file and one metadata file in a
// directory. It is safe for concurrent use by multiple goroutines, but not
// by multiple processes: region locking is in-process only.
package anydb
