// Package summary renders the Exit Summary (§4.8): new tapes written this
// session and tapes that were loaded but never matched.
package summary

import (
	"fmt"
	"io"
	"sort"
)

// PathSets is the subset of Store state the summary needs.
type PathSets struct {
	All  []string
	Used []string
	New  []string
}

// Render computes new/unused partitions and writes the summary block to w.
// When both sets are empty, nothing is written. Calling Render twice with
// the same PathSets produces byte-identical output (idempotence, §4.8).
func Render(w io.Writer, sets PathSets) {
	used := toSet(sets.Used)
	newSet := toSet(sets.New)

	var unused []string
	for _, p := range sets.All {
		if !used[p] && !newSet[p] {
			unused = append(unused, p)
		}
	}

	newPaths := append([]string(nil), sets.New...)
	sort.Strings(newPaths)
	sort.Strings(unused)

	if len(newPaths) == 0 && len(unused) == 0 {
		return
	}

	fmt.Fprintln(w, "===== SUMMARY (claude_control) =====")
	fmt.Fprintln(w, "New tapes:")
	for _, p := range newPaths {
		fmt.Fprintf(w, "- %s\n", p)
	}
	fmt.Fprintln(w, "Unused tapes:")
	for _, p := range unused {
		fmt.Fprintf(w, "- %s\n", p)
	}
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, i := range items {
		m[i] = true
	}
	return m
}
