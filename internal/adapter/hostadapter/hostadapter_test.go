package hostadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/config"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/stretchr/testify/require"
)

type recordingOrganizer struct {
	archives []entity.ArchiveFile
	paths    []string
}

func (o *recordingOrganizer) InstallArchive(_ context.Context, archive entity.ArchiveFile) error {
	o.archives = append(o.archives, archive)

	return nil
}

func (o *recordingOrganizer) InstallPath(_ context.Context, path string) error {
	o.paths = append(o.paths, path)

	return nil
}

func TestSelectInstaller(t *testing.T) {
	testCases := []struct {
		name    string
		version string
		shape   string
	}{
		{name: "Scenario 1: 2.5 takes the archive", version: "2.5.0", shape: ShapeArchive},
		{name: "Scenario 2: 2.5.2 with build takes the archive", version: "2.5.2.1", shape: ShapeArchive},
		{name: "Scenario 3: 2.4 takes the path", version: "2.4.4", shape: ShapePath},
		{name: "Scenario 4: Major 3 takes the path", version: "3.0", shape: ShapePath},
		{name: "Scenario 5: Garbage takes the path", version: "dev", shape: ShapePath},
		{name: "Scenario 6: Empty takes the path", version: "", shape: ShapePath},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			org := &recordingOrganizer{}
			inst := SelectInstaller(tc.version, org)
			require.Equal(t, tc.shape, inst.Shape())

			require.NoError(t, inst.Install(context.Background(), entity.DownloadEntry{RawFilePath: "/d/a.zip", FileSize: 3}))

			if tc.shape == ShapeArchive {
				require.Len(t, org.archives, 1)
				require.Equal(t, "/d/a.zip", org.archives[0].Path)
				require.Equal(t, int64(3), org.archives[0].Size)
				require.Empty(t, org.paths)
			} else {
				require.Equal(t, []string{"/d/a.zip"}, org.paths)
				require.Empty(t, org.archives)
			}
		})
	}
}

func TestExecOrganizer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	out := filepath.Join(t.TempDir(), "installed.txt")

	org := NewExecOrganizer(&config.HostConfig{
		InstallCommand: []string{"/bin/sh", "-c", `printf '%s|%s' "$0" "$` + EnvArchiveSize + `" > ` + out, config.PathPlaceholder},
	}, log)

	require.NoError(t, org.InstallArchive(context.Background(), entity.ArchiveFile{Path: "/d/My Mod.zip", Size: 12}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "/d/My Mod.zip|12", string(data))

	failing := NewExecOrganizer(&config.HostConfig{InstallCommand: []string{"/bin/sh", "-c", "exit 3"}}, log)
	err = failing.InstallPath(context.Background(), "/d/a.zip")
	require.True(t, errors.Is(err, common.ErrInstallFailed))

	empty := NewExecOrganizer(&config.HostConfig{}, log)
	require.ErrorIs(t, empty.InstallPath(context.Background(), "/d/a.zip"), common.ErrInstallFailed)
}
