// Package sources implements the reference-site adapters that look up
// metadata for booru tags. Each adapter searches one site, scores the
// candidates against the queried names with the similarity package, and
// returns the best match as an ordered set of attribute values. Two
// step sites (search plus a detail page) fetch the detail for the
// winning candidate and merge it in.
//
// Adapters never fail a lookup outright: network and parse problems
// degrade to an empty result after the shared client's retries are
// exhausted, and the orchestrator moves on to the next site.
package sources
