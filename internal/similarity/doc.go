// Package similarity scores how closely two names resemble each other.
// Reference sites romanize and punctuate names inconsistently, so the
// scorer normalizes both inputs before computing a Ratcliff/Obershelp
// ratio, then rewards substring containment with source-specific weights.
package similarity
