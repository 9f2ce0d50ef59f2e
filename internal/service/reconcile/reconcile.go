// Package reconcile groups entries by logical identity and finds duplicates and pending updates.
// All functions are pure and independent of the input order.
package reconcile

import (
	"sort"
	"strings"

	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/jgivc/dlmanager/internal/util"
	"github.com/jgivc/dlmanager/internal/version"
)

// LogicalKey is the first non-blank of name and mod name, else the archive stem, trimmed and lower-cased.
func LogicalKey(e *entity.DownloadEntry) string {
	for _, candidate := range []string{e.Name, e.ModName} {
		if key := strings.ToLower(strings.TrimSpace(candidate)); key != "" {
			return key
		}
	}

	return strings.ToLower(strings.TrimSpace(util.Stem(e.RawFilePath)))
}

func groupByKey(entries []entity.DownloadEntry) map[string][]entity.DownloadEntry {
	groups := make(map[string][]entity.DownloadEntry)
	for _, e := range entries {
		key := LogicalKey(&e)
		groups[key] = append(groups[key], e)
	}

	return groups
}

// newestFirst orders by file time, then version, descending. Path breaks exact ties.
func newestFirst(members []entity.DownloadEntry) {
	keys := make(map[string]version.Key, len(members))
	for _, m := range members {
		keys[m.RawFilePath] = version.Parse(m.Version)
	}

	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]

		if !a.FileTime.Equal(b.FileTime) {
			return a.FileTime.After(b.FileTime)
		}

		if c := keys[a.RawFilePath].Compare(keys[b.RawFilePath]); c != 0 {
			return c > 0
		}

		return a.RawFilePath < b.RawFilePath
	})
}

// Groups returns every logical group with at least two members, sorted by key.
func Groups(entries []entity.DownloadEntry) []entity.DuplicateGroup {
	var result []entity.DuplicateGroup

	for key, members := range groupByKey(entries) {
		if len(members) < 2 {
			continue
		}

		newestFirst(members)

		result = append(result, entity.DuplicateGroup{
			Key:     key,
			Keep:    members[0],
			Entries: members[1:],
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// Duplicates returns every member of a group except its newest one.
func Duplicates(entries []entity.DownloadEntry) []entity.DownloadEntry {
	var result []entity.DownloadEntry
	for _, g := range Groups(entries) {
		result = append(result, g.Entries...)
	}

	return sortByPath(result)
}

/*
NotInstalled returns the entries that are updates not applied yet.
 1. In a group with no installed member every member is returned.
 2. Otherwise only non-installed members strictly newer than the newest installed one are returned.
*/
func NotInstalled(entries []entity.DownloadEntry) []entity.DownloadEntry {
	var result []entity.DownloadEntry

	for _, members := range groupByKey(entries) {
		var (
			hasInstalled bool
			newest       entity.DownloadEntry
		)

		for _, m := range members {
			if m.Installed && (!hasInstalled || m.FileTime.After(newest.FileTime)) {
				newest = m
				hasInstalled = true
			}
		}

		for _, m := range members {
			if m.Installed {
				continue
			}

			if !hasInstalled || m.FileTime.After(newest.FileTime) {
				result = append(result, m)
			}
		}
	}

	return sortByPath(result)
}

// NotInstalledEntries is the plain view of entries without the installed flag.
func NotInstalledEntries(entries []entity.DownloadEntry) []entity.DownloadEntry {
	var result []entity.DownloadEntry
	for _, e := range entries {
		if !e.Installed {
			result = append(result, e)
		}
	}

	return sortByPath(result)
}

func sortByPath(entries []entity.DownloadEntry) []entity.DownloadEntry {
	if entries == nil {
		return []entity.DownloadEntry{}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RawFilePath < entries[j].RawFilePath
	})

	return entries
}
