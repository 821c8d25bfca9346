package hub

import "testing"

func TestChangeNote(t *testing.T) {
	old := map[string]string{"name_ja": "A", "alias": "B", "blog": "C"}
	oldOrder := []string{"name_ja", "alias", "blog"}
	new := map[string]string{"name_ja": "A2", "description": "D", "blog": "C"}
	newOrder := []string{"name_ja", "description", "blog"}

	got := ChangeNote(oldOrder, old, newOrder, new, 0)
	want := "Change:name_ja;Add:description;Delete:alias"
	if got != want {
		t.Errorf("note = %q, want %q", got, want)
	}
}

func TestChangeNoteOrderOnly(t *testing.T) {
	content := map[string]string{"a": "1", "b": "2"}
	got := ChangeNote([]string{"a", "b"}, content, []string{"b", "a"}, content, 0)
	if got != "Order changed" {
		t.Errorf("note = %q", got)
	}
}

func TestChangeNoteRevert(t *testing.T) {
	content := map[string]string{"a": "1"}
	got := ChangeNote([]string{"a"}, map[string]string{"a": "2"}, []string{"a"}, content, 7)
	if got != "Revert to id:7;Change:a" {
		t.Errorf("note = %q", got)
	}

	got = ChangeNote([]string{"a"}, content, []string{"a"}, content, 7)
	if got != "Revert to id:7" {
		t.Errorf("pure revert note = %q", got)
	}
}
