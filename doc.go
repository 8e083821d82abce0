// Package found provides the engine adapter and transaction harness that
// every store in this repository (nstore, vnstore, bstore, eavstore,
// pstore) is built on top of.
//
// The adapter is a thin wrapper over an ordered key-value engine exposing
// serializable, interactive transactions: snapshot reads, atomic commits,
// retry-on-conflict, key-range scans, atomic mutations, range-size
// estimation, and versionstamps. Two implementations are provided: OpenFDB,
// which talks to a real FoundationDB cluster through the official client
// bindings, and NewMemDatabase, an in-process engine used by this module's
// own test suite.
package found

// Size limits enforced by the underlying engine (spec §5). B-store relies
// on MaxValue to decide how to chunk large blobs.
const (
	MaxValue       = 100_000    // maximum size in bytes of a single value
	MaxKey         = 10_000     // maximum size in bytes of a single key
	MaxTransaction = 10_000_000 // maximum total size in bytes of buffered writes per transaction
)
