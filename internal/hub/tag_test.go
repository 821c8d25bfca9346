package hub

import (
	"errors"
	"reflect"
	"testing"

	"boorubot/internal/schema"
	"boorubot/internal/services"
)

func TestMainNamePriority(t *testing.T) {
	tag := NewTag("yutaka_nakamura", schema.TagArtist)
	if got := tag.MainName(); got != "Yutaka Nakamura" {
		t.Errorf("fallback main name = %q", got)
	}

	tag.Detail["name_ja"] = "中村豊"
	if got := tag.MainName(); got != "中村豊" {
		t.Errorf("artist name_ja main name = %q", got)
	}

	tag.Detail["name_zh"] = "中村丰"
	if got := tag.MainName(); got != "中村丰" {
		t.Errorf("name_zh should beat name_ja, got %q", got)
	}

	tag.Detail["name_main"] = "Nakamura Yutaka"
	if got := tag.MainName(); got != "Nakamura Yutaka" {
		t.Errorf("name_main should win, got %q", got)
	}

	copyright := NewTag("one_piece", schema.TagCopyright)
	copyright.Detail["name_ja"] = "ワンピース"
	if got := copyright.MainName(); got != "One Piece" {
		t.Errorf("non-artist must not fall back to name_ja, got %q", got)
	}
}

func TestJaNameOverrideFallback(t *testing.T) {
	tag := NewTag("some_artist", schema.TagArtist)
	if got := tag.JaName(); got != "" {
		t.Errorf("empty ja name = %q", got)
	}
	tag.OverrideName = "何某"
	if got := tag.JaName(); got != "何某" {
		t.Errorf("artist override fallback = %q", got)
	}
	copyright := NewTag("some_show", schema.TagCopyright)
	copyright.OverrideName = "何某"
	if got := copyright.JaName(); got != "" {
		t.Errorf("copyright must not use override for ja name, got %q", got)
	}
}

func TestSaveToDetailRejectsUnknownCode(t *testing.T) {
	reg := schema.DefaultRegistry()
	tag := NewTag("x", schema.TagCopyright)
	err := tag.SaveToDetail(reg, "no_such_attr", "v", true)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := tag.SaveToDetail(reg, "birth", "1999-01-01", true); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("birth must not apply to copyright tags, got %v", err)
	}
}

func TestSaveToDetailOverwritePolicy(t *testing.T) {
	reg := schema.DefaultRegistry()
	tag := NewTag("x", schema.TagCopyright)
	if err := tag.SaveToDetail(reg, "name_ja", "first", true); err != nil {
		t.Fatal(err)
	}
	if err := tag.SaveToDetail(reg, "name_ja", "second", false); err != nil {
		t.Fatal(err)
	}
	if tag.Detail["name_ja"] != "first" {
		t.Errorf("setdefault overwrote: %q", tag.Detail["name_ja"])
	}
	if err := tag.SaveToDetail(reg, "name_ja", "third", true); err != nil {
		t.Fatal(err)
	}
	if tag.Detail["name_ja"] != "third" {
		t.Errorf("overwrite ignored: %q", tag.Detail["name_ja"])
	}
	if !reflect.DeepEqual(tag.OrderOfKeys, []string{"name_ja"}) {
		t.Errorf("key order = %v", tag.OrderOfKeys)
	}
}

func TestSaveToDetailCoercesTypes(t *testing.T) {
	reg := schema.DefaultRegistry()
	tag := NewTag("x", schema.TagCopyright)
	if err := tag.SaveToDetail(reg, "mal_aid", 1245, true); err != nil {
		t.Fatal(err)
	}
	if tag.Detail["mal_aid"] != "1245" {
		t.Errorf("mal_aid = %q", tag.Detail["mal_aid"])
	}
	if err := tag.SaveToDetail(reg, "mal_aid", "oops", true); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad integer, got %v", err)
	}
}

func TestSaveToDetailSkipsPatternCheck(t *testing.T) {
	reg := schema.DefaultRegistry()
	tag := NewTag("x", schema.TagCopyright)
	// Knowledge graph ids are mostly Freebase mids, which the display
	// pattern does not admit. The save path keeps them anyway; the
	// pattern only gates manual edits.
	if err := tag.SaveToDetail(reg, "kgs_url", "http://g.co/kg/m/0k0fs2", true); err != nil {
		t.Fatal(err)
	}
	if tag.Detail["kgs_url"] != "http://g.co/kg/m/0k0fs2" {
		t.Errorf("kgs_url = %q", tag.Detail["kgs_url"])
	}
}

func TestGenOrderOfKeys(t *testing.T) {
	got := GenOrderOfKeys([]string{"a", "b", "c"}, []string{"c", "a", "d"})
	want := []string{"a", "c", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GenOrderOfKeys = %v, want %v", got, want)
	}
}

func TestContentHashDependsOnOrder(t *testing.T) {
	a := NewTag("x", schema.TagArtist)
	a.Detail = map[string]string{"name_ja": "A", "name_en": "B"}
	a.OrderOfKeys = []string{"name_ja", "name_en"}

	b := NewTag("x", schema.TagArtist)
	b.Detail = map[string]string{"name_ja": "A", "name_en": "B"}
	b.OrderOfKeys = []string{"name_en", "name_ja"}

	if a.ContentHash() == b.ContentHash() {
		t.Error("reordered detail must hash differently")
	}

	c := NewTag("y", schema.TagArtist)
	c.Detail = map[string]string{"name_ja": "A", "name_en": "B"}
	c.OrderOfKeys = []string{"name_ja", "name_en"}
	if a.ContentHash() != c.ContentHash() {
		t.Error("identical ordered detail must share a hash")
	}
}
