package hub

import (
	"fmt"
	"strings"
)

// ChangeNote summarizes the difference between two revisions in the
// compact form shown in a tag's history. revertID marks revisions whose
// content matches an earlier snapshot. A revision that only reorders
// keys gets a bare "Order changed".
func ChangeNote(oldOrder []string, old map[string]string, newOrder []string, new map[string]string, revertID int64) string {
	notes := make([]string, 0, 4)
	if revertID > 0 {
		notes = append(notes, fmt.Sprintf("Revert to id:%d", revertID))
	}

	remaining := make([]string, 0, len(oldOrder))
	remaining = append(remaining, oldOrder...)
	changed := make([]string, 0)
	added := make([]string, 0)
	for _, key := range newOrder {
		if containsKey(remaining, key) {
			if old[key] != new[key] {
				changed = append(changed, key)
			}
			remaining = removeKey(remaining, key)
		} else {
			added = append(added, key)
		}
	}
	if len(changed) > 0 {
		notes = append(notes, "Change:"+strings.Join(changed, ","))
	}
	if len(added) > 0 {
		notes = append(notes, "Add:"+strings.Join(added, ","))
	}
	if len(remaining) > 0 {
		notes = append(notes, "Delete:"+strings.Join(remaining, ","))
	}
	if len(notes) == 0 {
		notes = append(notes, "Order changed")
	}
	return strings.Join(notes, ";")
}

func removeKey(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
