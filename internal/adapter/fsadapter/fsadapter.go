package fsadapter

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/jgivc/dlmanager/internal/util"
	"github.com/spf13/afero"
)

type MetaStore interface {
	Read(path string) (*entity.MetadataRecord, error)
}

type fsAdapter struct {
	fs    afero.Fs
	store MetaStore
	log   *slog.Logger
}

func NewFSAdapter(store MetaStore, log *slog.Logger) *fsAdapter {
	return NewFSAdapterWithFS(afero.NewOsFs(), store, log)
}

func NewFSAdapterWithFS(fs afero.Fs, store MetaStore, log *slog.Logger) *fsAdapter {
	return &fsAdapter{
		fs:    fs,
		store: store,
		log:   log.With(slog.String("item", "FSAdapter")),
	}
}

/*
ToEntry builds the entry for one archive found by a scan.
 1. If the archive is gone, common.ErrArchiveVanished is returned and the caller drops it.
 2. If "<archive>.meta" is missing, empty or unreadable, a stub is built from the stat values alone.
 3. Otherwise the sidecar fields are copied, with the archive stem as the name when the sidecar has none.
*/
func (a *fsAdapter) ToEntry(archive entity.ArchiveFile) (*entity.DownloadEntry, error) {
	exists, err := afero.Exists(a.fs, archive.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot check archive %s: %w", archive.Path, err)
	}

	if !exists {
		return nil, fmt.Errorf("%w: %s", common.ErrArchiveVanished, archive.Path)
	}

	metaPath := entity.MetaPath(archive.Path)

	rec, err := a.store.Read(metaPath)
	if err != nil {
		a.log.Warn("Cannot read metadata, using stub", slog.String("path", metaPath), slog.Any("error", err))

		return toStub(archive), nil
	}

	if rec == nil {
		return toStub(archive), nil
	}

	return toEntry(archive, metaPath, rec), nil
}

func newEntry(archive entity.ArchiveFile) *entity.DownloadEntry {
	return &entity.DownloadEntry{
		ID:          util.GetIDFromString(&archive.Path),
		FileName:    filepath.Base(archive.Path),
		FileTime:    archive.ModTime,
		RawFilePath: archive.Path,
		FileSize:    archive.Size,
	}
}

func toStub(archive entity.ArchiveFile) *entity.DownloadEntry {
	return newEntry(archive)
}

func toEntry(archive entity.ArchiveFile, metaPath string, rec *entity.MetadataRecord) *entity.DownloadEntry {
	entry := newEntry(archive)

	entry.Name = rec.Name
	if strings.TrimSpace(entry.Name) == "" {
		entry.Name = util.Stem(archive.Path)
	}

	entry.ModName = rec.ModName
	entry.Version = rec.Version
	entry.Installed = rec.Installed
	entry.Hidden = rec.Removed
	entry.RawMetaPath = metaPath
	entry.NexusModID = parseID(rec.ModID)
	entry.NexusFileID = parseID(rec.FileID)
	entry.Repository = rec.Repository
	entry.GameName = rec.GameName

	return entry
}

// parseID returns 0 for blank or non-numeric ids.
func parseID(raw string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 0 {
		return 0
	}

	return id
}
