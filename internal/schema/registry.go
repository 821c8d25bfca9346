package schema

import (
	"regexp"
	"sort"
)

// Registry holds the known attributes keyed by code.
type Registry struct {
	byCode map[string]*Attribute
}

// NewRegistry builds a registry from an explicit attribute list. Later
// duplicates of a code replace earlier ones.
func NewRegistry(attrs []*Attribute) *Registry {
	r := &Registry{byCode: make(map[string]*Attribute, len(attrs))}
	for _, a := range attrs {
		r.byCode[a.Code] = a
	}
	return r
}

// Get returns the attribute for a code regardless of tag category.
func (r *Registry) Get(code string) (*Attribute, bool) {
	a, ok := r.byCode[code]
	return a, ok
}

// GetFor returns the attribute for a code only when it applies to the
// given tag category.
func (r *Registry) GetFor(code string, t TagType) (*Attribute, bool) {
	a, ok := r.byCode[code]
	if !ok || !a.AppliesTo(t) {
		return nil, false
	}
	return a, true
}

// For lists the attributes applicable to a tag category, sorted by
// display order then code.
func (r *Registry) For(t TagType) []*Attribute {
	out := make([]*Attribute, 0, len(r.byCode))
	for _, a := range r.byCode {
		if a.AppliesTo(t) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Code < out[j].Code
	})
	return out
}

var (
	wikiZHPattern = regexp.MustCompile(`^((https?)://)?zh\.wikipedia\.org/wiki/[^\s]*$`)
	wikiJAPattern = regexp.MustCompile(`^((https?)://)?ja\.wikipedia\.org/wiki/[^\s]*$`)
	wikiENPattern = regexp.MustCompile(`^((https?)://)?en\.wikipedia\.org/wiki/[^\s]*$`)
	kgsPattern    = regexp.MustCompile(`^((https?)://)?g\.co/kg/g/[^\s]*$`)
	asdbPattern   = regexp.MustCompile(`^((https?)://)?seesaawiki\.jp/w/radioi_34/d/[^\s]*$`)
)

// DefaultRegistry returns the standard attribute vocabulary.
func DefaultRegistry() *Registry {
	everyType := AllTagTypes
	named := []TagType{TagArtist, TagCopyright, TagTerminology}
	return NewRegistry([]*Attribute{
		{Code: "name_main", Name: "Primary name", Type: String, RelatedTypes: everyType, Order: 0},
		{Code: "name_zh", Name: "Chinese name", Type: String, RelatedTypes: everyType, Order: 1},
		{Code: "name_ja", Name: "Japanese name", Type: String, RelatedTypes: everyType, Order: 2},
		{Code: "name_en", Name: "English name", Type: String, RelatedTypes: everyType, Order: 3},
		{Code: "alias", Name: "Alias", Type: String, RelatedTypes: everyType, Order: 4},
		{Code: "birth", Name: "Birth", Type: Date, RelatedTypes: []TagType{TagArtist}, Order: 5},
		{Code: "description", Name: "Description", Type: String, RelatedTypes: everyType, Order: 5},
		{Code: "twitter_id", Name: "Twitter", Type: String, Format: "https://twitter.com/%v",
			RelatedTypes: []TagType{TagArtist, TagCopyright}, Order: 6},
		{Code: "blog", Name: "Blog", Type: String, RelatedTypes: []TagType{TagArtist, TagCopyright}, Order: 6},
		{Code: "wiki_zh", Name: "Chinese Wikipedia", Type: String, Pattern: wikiZHPattern, RelatedTypes: named, Order: 7},
		{Code: "wiki_ja", Name: "Japanese Wikipedia", Type: String, Pattern: wikiJAPattern, RelatedTypes: named, Order: 7},
		{Code: "wiki_en", Name: "English Wikipedia", Type: String, Pattern: wikiENPattern, RelatedTypes: named, Order: 7},
		{Code: "bgm_sid", Name: "Bangumi", Type: Integer, Format: "http://bgm.tv/subject/%v",
			RelatedTypes: []TagType{TagCopyright}, Order: 8},
		{Code: "ann_pid", Name: "Anime News Network", Type: Integer,
			Format:       "https://www.animenewsnetwork.com/encyclopedia/people.php?id=%v",
			RelatedTypes: []TagType{TagArtist}, Order: 8},
		{Code: "mal_aid", Name: "MyAnimeList", Type: Integer, Format: "https://myanimelist.net/anime/%v/",
			RelatedTypes: []TagType{TagCopyright}, Order: 8},
		{Code: "sakuga_wiki_id", Name: "Sakuga Wiki", Type: Integer,
			Format:       "https://www18.atwiki.jp/sakuga/pages/%v.html",
			RelatedTypes: []TagType{TagArtist, TagCopyright}, Order: 8},
		{Code: "anime_wiki_id", Name: "Anime Wiki", Type: Integer,
			Format:       "https://www7.atwiki.jp/anime_wiki/pages/%v.html",
			RelatedTypes: []TagType{TagArtist, TagCopyright}, Order: 8},
		{Code: "anime_staff_database_link", Name: "Anime Staff Database", Type: String, Pattern: asdbPattern,
			RelatedTypes: []TagType{TagCopyright}, Order: 8},
		{Code: "kgs_url", Name: "Knowledge Graph", Type: String, Pattern: kgsPattern, RelatedTypes: named, Order: 13},
	})
}
