// Package corpus discovers and orders the recording files that drive the
// vibration replay stream.
//
// A corpus is a directory hierarchy of machine/operation/quality/file, e.g.
//
//	/shared-data/M01/OP01/good/M01_Aug_2019_OP01_000.csv
//
// The Indexer walks that hierarchy, applies the machine include-list and
// operation exclude-list, and produces a Manifest: a deterministic, totally
// ordered list of FileDescriptors. Ordering is chronological by the date
// token embedded in each file name, with (machine, operation, quality, path)
// breaking ties, so two independent indexing runs over the same corpus
// snapshot produce byte-identical manifests.
//
// The manifest is persisted as JSON in the shared data directory so that the
// staging producer and the streaming consumer, which run as independent
// processes, agree on play order without re-scanning the corpus.
package corpus
