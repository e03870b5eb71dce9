// Package playback implements the rotation/playback engine: an unbounded
// timed loop that replays the manifest's recordings as fixed-cadence batches.
//
// The Engine owns the PlaybackPosition cursor (file index, sample offset) and
// advances it monotonically. Each tick emits one Batch of up to BatchSize
// consecutive samples from the active file, then advances; exhausting a file
// rotates to the next manifest index, and the index wraps to zero after the
// last file so downstream consumers always see fresh readings. Only the
// active file's samples are held in memory.
//
// Failure policy follows the streaming core's taxonomy: a file that fails to
// load is skipped with a counter increment, a sink write failure is logged
// and the loop continues, and only a full pass of unloadable files halts the
// engine. Given the same manifest and starting position the emitted batch
// sequence is reproducible.
//
// Multiple engines may share one read-only manifest; each owns its cursor
// independently, so horizontally scaled replicas replay the same global
// order without phase coordination.
package playback
