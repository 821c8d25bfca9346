package hub

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"boorubot/internal/schema"
	"boorubot/internal/services"
)

var titleCaser = cases.Title(language.Und)

// Tag is a booru tag together with its enriched metadata. Detail maps
// attribute codes to serialized values; OrderOfKeys preserves the
// display order in which attributes were first recorded.
type Tag struct {
	Name         string
	Type         schema.TagType
	OverrideName string
	DeletionFlag bool
	IsEditable   bool
	Detail       map[string]string
	OrderOfKeys  []string
}

// NewTag returns an empty tag of the given category.
func NewTag(name string, typ schema.TagType) *Tag {
	return &Tag{
		Name:       name,
		Type:       typ,
		IsEditable: true,
		Detail:     make(map[string]string),
	}
}

// MainName picks the best display name: the recorded primary or Chinese
// name, the Japanese name for artists, then a title-cased fallback
// derived from the tag name itself.
func (t *Tag) MainName() string {
	for _, code := range []string{"name_main", "name_zh"} {
		if name := t.Detail[code]; name != "" {
			return name
		}
	}
	if t.Type == schema.TagArtist {
		if name := t.Detail["name_ja"]; name != "" {
			return name
		}
	}
	return titleCaser.String(strings.ReplaceAll(t.Name, "_", " "))
}

// JaName returns the Japanese name when one is known. Artists fall back
// to the override name; other categories have no fallback.
func (t *Tag) JaName() string {
	if name := t.Detail["name_ja"]; name != "" {
		return name
	}
	if t.Type == schema.TagArtist && t.OverrideName != "" {
		return t.OverrideName
	}
	return ""
}

// WeiboName is the name used when composing statuses.
func (t *Tag) WeiboName() string {
	if t.OverrideName != "" {
		return t.OverrideName
	}
	return t.MainName()
}

// SaveToDetail records one attribute value. Unknown codes and values
// the attribute cannot coerce are rejected; pattern checks belong to
// the manual edit path, not here. With overwrite false an existing
// value is kept. New codes append to the key order.
func (t *Tag) SaveToDetail(reg *schema.Registry, code string, value any, overwrite bool) error {
	attr, ok := reg.GetFor(code, t.Type)
	if !ok {
		return services.Wrap(services.ErrValidation, "hub", "save detail",
			fmt.Sprintf("attribute %q does not exist for %s tags", code, t.Type), nil)
	}
	serialized, err := attr.Serialize(value)
	if err != nil {
		return err
	}
	if t.Detail == nil {
		t.Detail = make(map[string]string)
	}
	if _, exists := t.Detail[code]; !exists || overwrite {
		t.Detail[code] = serialized
	}
	if !containsKey(t.OrderOfKeys, code) {
		t.OrderOfKeys = append(t.OrderOfKeys, code)
	}
	return nil
}

// GenOrderOfKeys merges an existing ordering with the current key set:
// known keys keep their relative order, new keys append at the end.
func GenOrderOfKeys(order, keys []string) []string {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	out := make([]string, 0, len(keys))
	for _, k := range order {
		if seen[k] && !containsKey(out, k) {
			out = append(out, k)
		}
	}
	for _, k := range keys {
		if !containsKey(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// RefreshOrder reconciles OrderOfKeys with the detail's current keys.
// Keys added behind SaveToDetail's back sort alphabetically at the end
// so the ordering stays deterministic.
func (t *Tag) RefreshOrder() {
	keys := make([]string, 0, len(t.Detail))
	for _, k := range t.OrderOfKeys {
		if _, ok := t.Detail[k]; ok {
			keys = append(keys, k)
		}
	}
	extra := make([]string, 0)
	for k := range t.Detail {
		if !containsKey(keys, k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	t.OrderOfKeys = append(keys, extra...)
}

// OrderedKeys returns the key order limited to keys that still exist.
func (t *Tag) OrderedKeys() []string {
	out := make([]string, 0, len(t.OrderOfKeys))
	for _, k := range t.OrderOfKeys {
		if _, ok := t.Detail[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// ContentHash digests the ordered detail so revisions with the same
// keys, values, and ordering share a hash.
func (t *Tag) ContentHash() string {
	h := md5.New()
	for _, k := range t.OrderedKeys() {
		io.WriteString(h, k)
		h.Write([]byte{0})
		io.WriteString(h, t.Detail[k])
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
