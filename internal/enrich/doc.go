// Package enrich orchestrates tag metadata lookups across the
// reference-site adapters. Artists are resolved through Anime News
// Network and the Knowledge Graph person search; works go through
// MyAnimeList, Bangumi, and as a guarded fallback the Knowledge Graph
// thing search. Both then collect wiki ids from @wiki, and works also
// check the Anime Staff Database.
//
// Collected values merge into the tag with first-wins semantics: a
// later source never replaces a recorded value unless the merge policy
// explicitly allows that source to overwrite that attribute.
package enrich
