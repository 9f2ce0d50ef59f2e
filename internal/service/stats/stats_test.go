package stats

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	entries := []entity.DownloadEntry{
		{RawFilePath: "/d/a1.zip", Name: "A", FileTime: t0, FileSize: 1000, Installed: true, RawMetaPath: "/d/a1.zip.meta"},
		{RawFilePath: "/d/a2.zip", Name: "A", FileTime: t0.Add(time.Hour), FileSize: 2000, RawMetaPath: "/d/a2.zip.meta"},
		{RawFilePath: "/d/b.zip", Name: "B", FileTime: t0, FileSize: 500, Hidden: true, RawMetaPath: "/d/b.zip.meta"},
		{RawFilePath: "/d/c.zip", FileTime: t0, FileSize: 1_500_000},
	}

	s := NewStatsService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	st := s.Compute(entries)

	require.Equal(t, 4, st.Total)
	require.Equal(t, 1, st.Installed)
	require.Equal(t, 1, st.Hidden)
	require.Equal(t, 3, st.WithMeta)
	require.Equal(t, 1, st.Duplicates)
	require.Equal(t, int64(1000), st.ReclaimableBytes)
	require.Equal(t, "1.0 kB", st.ReclaimableSize)
	// a2 is newer than the installed a1; b and c have no installed member
	require.Equal(t, 3, st.Pending)
	require.Equal(t, int64(1_503_500), st.TotalBytes)
	require.Equal(t, "1.5 MB", st.TotalSize)

	report := s.Report("/d", entries, t0)
	require.Equal(t, "/d", report.Directory)
	require.Len(t, report.Groups, 1)
	require.Equal(t, "/d/a2.zip", report.Groups[0].Keep.RawFilePath)
	require.Len(t, report.Pending, 3)
}

func TestComputeEmpty(t *testing.T) {
	s := NewStatsService(slog.New(slog.NewTextHandler(io.Discard, nil)))
	st := s.Compute(nil)

	require.Zero(t, st.Total)
	require.Equal(t, "0 B", st.TotalSize)
}
