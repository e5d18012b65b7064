package mailname

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Group collects the archive versions found for one mailbox name.
type Group struct {
	Name           string
	Latest         uint32
	VersionNumbers []uint32
	VersionNames   []string
}

// GroupNames decodes a flat list of encoded file names, groups them by
// decoded mailbox name and sorts both the groups (by name, ascending,
// case sensitive) and the versions inside each group (ascending).
// Latest records the highest version seen for the name. File names that
// fail to decode are skipped; a folder may hold foreign files.
func GroupNames(names []string, delim rune, opts Options) []Group {
	type entry struct {
		name    string
		version uint32
		file    string
	}

	var entries []entry
	maxLen := 0
	for _, file := range names {
		name, version, err := Decode(file, delim, opts)
		if err != nil {
			continue
		}
		if n := utf8.RuneCountInString(name); n > maxLen {
			maxLen = n
		}
		entries = append(entries, entry{name: name, version: version, file: file})
	}

	sort.Slice(entries, func(i, j int) bool {
		ki := sortKey(entries[i].name, entries[i].version, maxLen)
		kj := sortKey(entries[j].name, entries[j].version, maxLen)
		return ki < kj
	})

	var groups []Group
	for _, e := range entries {
		if len(groups) == 0 || groups[len(groups)-1].Name != e.name {
			groups = append(groups, Group{Name: e.name})
		}
		g := &groups[len(groups)-1]
		g.VersionNumbers = append(g.VersionNumbers, e.version)
		g.VersionNames = append(g.VersionNames, e.file)
		if e.version >= g.Latest {
			g.Latest = e.version
		}
	}
	return groups
}

// sortKey right-pads the name to the longest decoded name (width in
// runes, matching Sprintf's padding unit) and appends a fixed-width
// version, so plain string comparison orders by name first and version
// second.
func sortKey(name string, version uint32, width int) string {
	return fmt.Sprintf("%-*s%010d", width, name, version)
}
