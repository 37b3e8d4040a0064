// Package export encodes event log slices and snapshots for download.
//
// Documents are written as JSON (sonic) or YAML, optionally gzip or zstd
// compressed.
package export
