// Package hub owns the bot's persistent state: mirrored posts and
// uploaders, tag metadata with its display ordering, and the
// content-addressed snapshot history that records every revision of a
// tag's detail. Storage is a single SQLite database opened through
// Store; snapshot values are deduplicated into nodes keyed by
// attribute, hash, and length so repeated values across revisions are
// stored once.
package hub
