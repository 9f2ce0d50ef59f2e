package reconcile

import (
	"math/rand"
	"testing"
	"time"

	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func entry(path, name, modName, ver string, ts int, installed bool) entity.DownloadEntry {
	return entity.DownloadEntry{
		RawFilePath: "/d/" + path,
		FileName:    path,
		Name:        name,
		ModName:     modName,
		Version:     ver,
		FileTime:    at(ts),
		Installed:   installed,
	}
}

func paths(entries []entity.DownloadEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.RawFilePath)
	}

	return out
}

func TestLogicalKey(t *testing.T) {
	testCases := []struct {
		name   string
		entry  entity.DownloadEntry
		expect string
	}{
		{name: "Scenario 1: Name wins", entry: entry("x.zip", "  SkyUI ", "Other", "", 0, false), expect: "skyui"},
		{name: "Scenario 2: Blank name uses mod name", entry: entry("x.zip", "  ", "Mod B", "", 0, false), expect: "mod b"},
		{name: "Scenario 3: Both blank use the stem", entry: entry("Cool-Mod.7z", "", "", "", 0, false), expect: "cool-mod"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, LogicalKey(&tc.entry))
		})
	}
}

func TestDuplicates(t *testing.T) {
	testCases := []struct {
		name    string
		entries []entity.DownloadEntry
		expect  []string
	}{
		{
			name:    "Scenario 1: Single member group is never a duplicate",
			entries: []entity.DownloadEntry{entry("a.zip", "A", "", "1.0", 10, false)},
			expect:  []string{},
		},
		{
			name: "Scenario 2: Newest by file time is kept",
			entries: []entity.DownloadEntry{
				entry("a1.zip", "A", "", "9.0", 10, false),
				entry("a2.zip", "a", "", "1.0", 20, false),
				entry("a3.zip", "A ", "", "", 5, true),
			},
			expect: []string{"/d/a1.zip", "/d/a3.zip"},
		},
		{
			name: "Scenario 3: Version breaks a file time tie",
			entries: []entity.DownloadEntry{
				entry("b1.zip", "B", "", "1.10", 10, false),
				entry("b2.zip", "B", "", "1.9", 10, false),
			},
			expect: []string{"/d/b2.zip"},
		},
		{
			name: "Scenario 4: Empty version on the newest is still kept",
			entries: []entity.DownloadEntry{
				entry("c1.zip", "", "Mod C", "", 30, false),
				entry("c2.zip", "", "mod c", "5.0", 10, false),
			},
			expect: []string{"/d/c2.zip"},
		},
		{
			name: "Scenario 5: Different keys do not mix",
			entries: []entity.DownloadEntry{
				entry("d.zip", "D", "", "1", 10, false),
				entry("e.zip", "E", "", "1", 10, false),
			},
			expect: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, paths(Duplicates(tc.entries)))
		})
	}
}

func TestGroups(t *testing.T) {
	entries := []entity.DownloadEntry{
		entry("a1.zip", "A", "", "1.0", 10, false),
		entry("a2.zip", "A", "", "2.0", 20, false),
		entry("b.zip", "B", "", "1.0", 20, false),
	}

	groups := Groups(entries)
	require.Len(t, groups, 1)
	require.Equal(t, "a", groups[0].Key)
	require.Equal(t, "/d/a2.zip", groups[0].Keep.RawFilePath)
	require.Equal(t, []string{"/d/a1.zip"}, paths(groups[0].Entries))
}

func TestNotInstalled(t *testing.T) {
	testCases := []struct {
		name    string
		entries []entity.DownloadEntry
		expect  []string
	}{
		{
			name: "Scenario 1: Older than installed is excluded",
			entries: []entity.DownloadEntry{
				entry("i.zip", "M", "", "2", 100, true),
				entry("o.zip", "M", "", "1", 50, false),
			},
			expect: []string{},
		},
		{
			name: "Scenario 2: Newer than installed is included",
			entries: []entity.DownloadEntry{
				entry("i.zip", "M", "", "1", 100, true),
				entry("n.zip", "M", "", "2", 150, false),
			},
			expect: []string{"/d/n.zip"},
		},
		{
			name: "Scenario 3: Same time as installed is excluded",
			entries: []entity.DownloadEntry{
				entry("i.zip", "M", "", "1", 100, true),
				entry("s.zip", "M", "", "2", 100, false),
			},
			expect: []string{},
		},
		{
			name: "Scenario 4: Group without installed members is returned whole",
			entries: []entity.DownloadEntry{
				entry("x1.zip", "X", "", "1", 10, false),
				entry("x2.zip", "X", "", "2", 20, false),
			},
			expect: []string{"/d/x1.zip", "/d/x2.zip"},
		},
		{
			name: "Scenario 5: Newest installed member is the reference",
			entries: []entity.DownloadEntry{
				entry("i1.zip", "M", "", "1", 100, true),
				entry("i2.zip", "M", "", "2", 200, true),
				entry("n1.zip", "M", "", "3", 150, false),
				entry("n2.zip", "M", "", "4", 250, false),
			},
			expect: []string{"/d/n2.zip"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, paths(NotInstalled(tc.entries)))
		})
	}
}

func TestNotInstalledEntries(t *testing.T) {
	entries := []entity.DownloadEntry{
		entry("b.zip", "B", "", "", 10, false),
		entry("a.zip", "A", "", "", 10, true),
		entry("c.zip", "C", "", "", 10, false),
	}

	require.Equal(t, []string{"/d/b.zip", "/d/c.zip"}, paths(NotInstalledEntries(entries)))
}

func TestOrderIndependence(t *testing.T) {
	entries := []entity.DownloadEntry{
		entry("a1.zip", "A", "", "1.0", 10, true),
		entry("a2.zip", "A", "", "1.1", 10, false),
		entry("a3.zip", "A", "", "2.0", 30, false),
		entry("b1.zip", "", "B", "1", 5, false),
		entry("b2.zip", "", "B", "1", 5, false),
		entry("c.zip", "", "", "", 1, false),
	}

	wantDup := paths(Duplicates(append([]entity.DownloadEntry(nil), entries...)))
	wantPending := paths(NotInstalled(append([]entity.DownloadEntry(nil), entries...)))

	r := rand.New(rand.NewSource(1))
	for n := 0; n < 20; n++ {
		shuffled := append([]entity.DownloadEntry(nil), entries...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		require.Equal(t, wantDup, paths(Duplicates(shuffled)))
		require.Equal(t, wantPending, paths(NotInstalled(shuffled)))
	}
}
