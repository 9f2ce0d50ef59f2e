package fsadapter

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jgivc/dlmanager/internal/adapter/metaadapter"
	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const workDir = "/downloads"

func TestToEntry(t *testing.T) {
	mtime := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	testCases := []struct {
		name        string
		archive     string
		meta        string
		noArchive   bool
		expectError error
		check       func(t *testing.T, e *entity.DownloadEntry)
	}{
		{
			name:    "Scenario 1: No sidecar",
			archive: "ModA.zip",
			check: func(t *testing.T, e *entity.DownloadEntry) {
				require.Empty(t, e.Name)
				require.Empty(t, e.ModName)
				require.Empty(t, e.Version)
				require.False(t, e.Installed)
				require.False(t, e.Hidden)
				require.Empty(t, e.RawMetaPath)
				require.Zero(t, e.NexusModID)
				require.Zero(t, e.NexusFileID)
				require.Equal(t, "ModA.zip", e.FileName)
			},
		},
		{
			name:    "Scenario 2: Full sidecar",
			archive: "ModB.zip",
			meta:    "[General]\nname=ModB\nmodName=Mod B\nversion=1.0\ninstalled=true\nremoved=true\nmodID=42\nfileID=7\nrepository=Nexus\ngameName=skyrimse\n",
			check: func(t *testing.T, e *entity.DownloadEntry) {
				require.Equal(t, "ModB", e.Name)
				require.Equal(t, "Mod B", e.ModName)
				require.Equal(t, "1.0", e.Version)
				require.True(t, e.Installed)
				require.True(t, e.Hidden)
				require.Equal(t, workDir+"/ModB.zip.meta", e.RawMetaPath)
				require.Equal(t, int64(42), e.NexusModID)
				require.Equal(t, int64(7), e.NexusFileID)
				require.Equal(t, "Nexus", e.Repository)
				require.Equal(t, "skyrimse", e.GameName)
			},
		},
		{
			name:    "Scenario 3: Blank name falls back to the stem",
			archive: "Cool Mod-123-1-0.7z",
			meta:    "[General]\nname=\nversion=1.0\nmodID=abc\n",
			check: func(t *testing.T, e *entity.DownloadEntry) {
				require.Equal(t, "Cool Mod-123-1-0", e.Name)
				require.Zero(t, e.NexusModID)
				require.NotEmpty(t, e.RawMetaPath)
			},
		},
		{
			name:    "Scenario 4: Malformed sidecar degrades to stub",
			archive: "Broken.rar",
			meta:    "[General\nname=Broken\n",
			check: func(t *testing.T, e *entity.DownloadEntry) {
				require.Empty(t, e.Name)
				require.Empty(t, e.RawMetaPath)
			},
		},
		{
			name:        "Scenario 5: Archive vanished",
			archive:     "Gone.zip",
			noArchive:   true,
			expectError: common.ErrArchiveVanished,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, fs.MkdirAll(workDir, 0o755))
			log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

			path := workDir + "/" + tc.archive
			if !tc.noArchive {
				require.NoError(t, afero.WriteFile(fs, path, []byte("archive"), 0o644))
			}
			if tc.meta != "" {
				require.NoError(t, afero.WriteFile(fs, entity.MetaPath(path), []byte(tc.meta), 0o644))
			}

			adapter := NewFSAdapterWithFS(fs, metaadapter.NewMetaStoreWithFS(fs, log), log)

			entry, err := adapter.ToEntry(entity.ArchiveFile{Path: path, Size: 7, ModTime: mtime})
			if tc.expectError != nil {
				require.Error(t, err)
				require.True(t, errors.Is(err, tc.expectError))
				require.Nil(t, entry)

				return
			}

			require.NoError(t, err)
			require.Equal(t, path, entry.RawFilePath)
			require.Equal(t, int64(7), entry.FileSize)
			require.True(t, mtime.Equal(entry.FileTime), "stat snapshot is used")
			require.Len(t, entry.ID, 40)
			tc.check(t, entry)
		})
	}
}
