package similarity

import (
	"strings"
	"unicode"
)

// ExactMatch is the sentinel score returned when two names normalize to
// the same string. It sits above every achievable weighted ratio so that
// exact matches always win candidate selection outright.
const ExactMatch = 2.0

// Weights tunes the containment bonuses applied on top of the base ratio.
// Contains applies when the first name is a substring of the second,
// Reverse when the second is a substring of the first.
type Weights struct {
	Contains float64
	Reverse  float64
}

var synonymReplacer = strings.NewReplacer(
	"ō", "o", // ō
	"Ō", "O", // Ō
	"！", "!", // ！
	"ū", "u", // ū
)

// Normalize folds romanization variants, lowercases, and strips all
// whitespace so that "Yutaka  Nakamura" and "nakamura yūtaka" reduce to
// comparable forms.
func Normalize(name string) string {
	folded := strings.ToLower(synonymReplacer.Replace(name))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Score compares two names after normalization. Identical names yield
// ExactMatch; otherwise the Ratcliff/Obershelp ratio is boosted by the
// applicable containment weight.
func Score(a, b string, w Weights) float64 {
	na := Normalize(a)
	nb := Normalize(b)
	if na == nb {
		return ExactMatch
	}
	score := Ratio(na, nb)
	switch {
	case strings.Contains(nb, na):
		score += w.Contains
	case strings.Contains(na, nb):
		score += w.Reverse
	}
	return score
}

// Ratio computes the Ratcliff/Obershelp similarity of two strings: twice
// the total length of matching blocks divided by the combined length.
func Ratio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	ra := []rune(a)
	rb := []rune(b)
	matched := matchingRunes(ra, rb)
	return 2.0 * float64(matched) / float64(len(ra)+len(rb))
}

func matchingRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingRunes(a[:ai], b[:bi])
	total += matchingRunes(a[ai+size:], b[bi+size:])
	return total
}

// longestMatch finds the longest common substring using the standard
// rolling row over match lengths. Ties resolve to the earliest position
// in the first string, then the earliest in the second.
func longestMatch(a, b []rune) (ai, bi, size int) {
	row := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prevDiag := 0
		for j := 1; j <= len(b); j++ {
			cur := row[j]
			if a[i-1] == b[j-1] {
				row[j] = prevDiag + 1
				if row[j] > size {
					size = row[j]
					ai = i - size
					bi = j - size
				}
			} else {
				row[j] = 0
			}
			prevDiag = cur
		}
	}
	return ai, bi, size
}
