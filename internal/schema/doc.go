// Package schema defines the attribute vocabulary for tag metadata.
// Every piece of enriched information a tag can carry (names, links,
// external site ids, dates) is described by an Attribute that knows its
// value type, display order, link template, and which tag categories it
// applies to. The registry is constructed in code and injected where
// needed so the set of known attributes is fixed at build time.
package schema
