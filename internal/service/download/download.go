package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/config"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/jgivc/dlmanager/internal/metrics"
	"github.com/spf13/afero"
)

const (
	OpDelete  = "delete"
	OpHide    = "hide"
	OpInstall = "install"
	OpRequery = "requery"
)

type MetaStore interface {
	Write(path string, rec *entity.MetadataRecord, mergeExisting bool) error
	SetValues(path string, values map[string]string) error
	Exists(path string) bool
}

type EntryBuilder interface {
	ToEntry(archive entity.ArchiveFile) (*entity.DownloadEntry, error)
}

type LookupService interface {
	Lookup(ctx context.Context, md5 string) (*entity.LookupResult, error)
}

type Installer interface {
	Install(ctx context.Context, entry entity.DownloadEntry) error
	Shape() string
}

type downloadService struct {
	fs        afero.Fs
	store     MetaStore
	builder   EntryBuilder
	lookup    LookupService
	installer Installer
	nexusCfg  *config.NexusConfig
	hostCfg   *config.HostConfig
	now       func() time.Time
	log       *slog.Logger
}

func NewDownloadService(store MetaStore, builder EntryBuilder, lookup LookupService, installer Installer,
	nexusCfg *config.NexusConfig, hostCfg *config.HostConfig, log *slog.Logger) *downloadService {
	return NewDownloadServiceWithFS(afero.NewOsFs(), store, builder, lookup, installer, nexusCfg, hostCfg, log)
}

func NewDownloadServiceWithFS(fs afero.Fs, store MetaStore, builder EntryBuilder, lookup LookupService, installer Installer,
	nexusCfg *config.NexusConfig, hostCfg *config.HostConfig, log *slog.Logger) *downloadService {
	return &downloadService{
		fs:        fs,
		store:     store,
		builder:   builder,
		lookup:    lookup,
		installer: installer,
		nexusCfg:  nexusCfg,
		hostCfg:   hostCfg,
		now:       time.Now,
		log:       log.With(slog.String("item", "DownloadService")),
	}
}

// Delete removes the archive and then its sidecar. A file that is already gone is not an error.
func (d *downloadService) Delete(entry entity.DownloadEntry) error {
	log := d.log.With(slog.String("path", entry.RawFilePath))

	var errs []error
	archiveGone := true
	for _, path := range []string{entry.RawFilePath, entry.RawMetaPath} {
		if path == "" {
			continue
		}

		if err := d.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Error("Cannot remove file", slog.String("file", path), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("cannot remove %s: %w", path, err))

			if path == entry.RawFilePath {
				archiveGone = false
			}
		}
	}

	if len(errs) > 0 && archiveGone {
		errs = append([]error{common.ErrMetaNotRemoved}, errs...)
	}

	err := errors.Join(errs...)
	metrics.MutationsTotal.WithLabelValues(OpDelete, metrics.Status(err)).Inc()

	if err == nil {
		log.Info("Deleted")
	}

	return err
}

// Hide marks the sidecar as removed and returns the re-derived entry.
// Entries without a sidecar on disk cannot be hidden and yield common.ErrNoMetaPath.
func (d *downloadService) Hide(entry entity.DownloadEntry) (entity.DownloadEntry, error) {
	updated, err := d.hide(entry)
	metrics.MutationsTotal.WithLabelValues(OpHide, metrics.Status(err)).Inc()

	return updated, err
}

func (d *downloadService) hide(entry entity.DownloadEntry) (entity.DownloadEntry, error) {
	if !entry.HasMeta() {
		return entry, fmt.Errorf("%w: %s", common.ErrNoMetaPath, entry.RawFilePath)
	}

	if !d.store.Exists(entry.RawMetaPath) {
		return entry, fmt.Errorf("%w: %s is missing", common.ErrNoMetaPath, entry.RawMetaPath)
	}

	if err := d.store.SetValues(entry.RawMetaPath, map[string]string{entity.MetaKeyRemoved: entity.MetaTrue}); err != nil {
		d.log.Error("Cannot hide", slog.String("path", entry.RawMetaPath), slog.Any("error", err))

		return entry, fmt.Errorf("cannot hide %s: %w", entry.RawFilePath, err)
	}

	return d.rebuild(entry, func(e *entity.DownloadEntry) { e.Hidden = true }), nil
}

// BulkHide hides entries one by one. Failures are counted, never returned.
func (d *downloadService) BulkHide(entries []entity.DownloadEntry) (entity.BulkReport, []entity.DownloadEntry) {
	report := newReport()
	updated := make([]entity.DownloadEntry, 0, len(entries))

	for _, entry := range entries {
		e, err := d.Hide(entry)
		if err != nil {
			report.fail(entry, err)

			continue
		}

		report.Succeeded++
		updated = append(updated, e)
	}

	d.log.Info("Bulk hide done", slog.String("id", report.ID),
		slog.Int("succeeded", report.Succeeded), slog.Int("failed", report.Failed))

	return report.BulkReport, updated
}

/*
BulkInstall installs entries sequentially with the installer picked for the host version.
 1. A successful install hides the entry so it drops out of the pending view.
 2. A failed install is counted and the run goes on.
 3. When ctx is done the remaining entries are counted as skipped.
*/
func (d *downloadService) BulkInstall(ctx context.Context, entries []entity.DownloadEntry) (entity.BulkReport, []entity.DownloadEntry) {
	report := newReport()
	updated := make([]entity.DownloadEntry, 0, len(entries))
	log := d.log.With(slog.String("id", report.ID), slog.String("shape", d.installer.Shape()))

	for n, entry := range entries {
		if ctx.Err() != nil || (n > 0 && !d.pause(ctx)) {
			report.Skipped = len(entries) - n
			log.Info("Bulk install cancelled", slog.Int("skipped", report.Skipped))

			break
		}

		err := d.installer.Install(ctx, entry)
		metrics.MutationsTotal.WithLabelValues(OpInstall, metrics.Status(err)).Inc()

		if err != nil {
			log.Error("Cannot install", slog.String("path", entry.RawFilePath), slog.Any("error", err))
			report.fail(entry, err)

			continue
		}

		report.Succeeded++

		hidden, err := d.Hide(entry)
		if err != nil {
			log.Warn("Installed but cannot hide", slog.String("path", entry.RawFilePath), slog.Any("error", err))
			hidden = entry
		}
		updated = append(updated, hidden)
	}

	log.Info("Bulk install done",
		slog.Int("succeeded", report.Succeeded), slog.Int("failed", report.Failed), slog.Int("skipped", report.Skipped))

	return report.BulkReport, updated
}

// pause waits for the configured delay. It returns false if ctx ends first.
func (d *downloadService) pause(ctx context.Context) bool {
	if d.hostCfg.InstallDelay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d.hostCfg.InstallDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

/*
Requery identifies the archive by its MD5 and rewrites the sidecar from the lookup result.
 1. A miss or a lookup failure leaves the disk untouched and returns the lookup error.
 2. If the archive vanished the sidecar is not written and common.ErrArchiveVanished is returned.
 3. Otherwise the sidecar is merged with the new values and the entry is rebuilt from disk.
*/
func (d *downloadService) Requery(ctx context.Context, entry entity.DownloadEntry, md5 string) (entity.DownloadEntry, error) {
	updated, err := d.requery(ctx, entry, md5)
	metrics.MutationsTotal.WithLabelValues(OpRequery, metrics.Status(err)).Inc()

	return updated, err
}

func (d *downloadService) requery(ctx context.Context, entry entity.DownloadEntry, md5 string) (entity.DownloadEntry, error) {
	log := d.log.With(slog.String("path", entry.RawFilePath), slog.String("md5", md5))

	res, err := d.lookup.Lookup(ctx, md5)
	if err != nil {
		return entry, fmt.Errorf("cannot identify %s: %w", entry.RawFilePath, err)
	}

	exists, err := afero.Exists(d.fs, entry.RawFilePath)
	if err != nil || !exists {
		log.Warn("Archive vanished during requery")

		return entry, fmt.Errorf("%w: %s", common.ErrArchiveVanished, entry.RawFilePath)
	}

	metaPath := entity.MetaPath(entry.RawFilePath)
	rec := d.toRecord(entry, res)

	if err := d.store.Write(metaPath, rec, true); err != nil {
		log.Error("Cannot write metadata", slog.Any("error", err))

		return entry, fmt.Errorf("cannot write metadata for %s: %w", entry.RawFilePath, err)
	}

	updated, err := d.builder.ToEntry(archiveOf(entry))
	if err != nil {
		return entry, fmt.Errorf("cannot rebuild %s: %w", entry.RawFilePath, err)
	}

	log.Info("Identified", slog.Int64("mod_id", updated.NexusModID), slog.Int64("file_id", updated.NexusFileID))

	return *updated, nil
}

func (d *downloadService) toRecord(entry entity.DownloadEntry, res *entity.LookupResult) *entity.MetadataRecord {
	name := strings.TrimSpace(res.File.Name)
	if name == "" {
		name = res.Mod.Name
	}

	ver := res.File.Version
	if strings.TrimSpace(ver) == "" {
		ver = res.Mod.Version
	}

	userData, err := json.Marshal(res.Mod.User)
	if err != nil {
		userData = []byte("{}")
	}

	return &entity.MetadataRecord{
		Name:        name,
		ModName:     res.Mod.Name,
		Version:     ver,
		Installed:   entry.Installed,
		Removed:     false,
		Repository:  entity.RepoNexus,
		GameName:    d.hostCfg.GameName,
		ModID:       strconv.FormatInt(res.Mod.ID, 10),
		FileID:      strconv.FormatInt(res.File.ID, 10),
		FileTime:    d.now().UTC().Format(time.RFC3339),
		URL:         d.modURL(res.Mod.ID, res.File.ID),
		Description: res.Mod.Description,
		Extra: map[string]string{
			entity.MetaKeyNewestVersion: "",
			entity.MetaKeyFileCategory:  strconv.FormatInt(res.File.CategoryID, 10),
			entity.MetaKeyCategory:      strconv.FormatInt(res.Mod.CategoryID, 10),
			entity.MetaKeyUserData:      string(userData),
			entity.MetaKeyUninstalled:   entity.MetaFalse,
			entity.MetaKeyPaused:        entity.MetaFalse,
		},
	}
}

// modURL is the public page of the matched file.
func (d *downloadService) modURL(modID, fileID int64) string {
	return fmt.Sprintf("%s/%s/mods/%d?tab=files&file_id=%d",
		strings.TrimRight(d.nexusCfg.SiteURL, "/"), d.nexusCfg.GameDomain, modID, fileID)
}

// rebuild re-reads the entry from disk. If that fails the old entry is patched instead.
func (d *downloadService) rebuild(entry entity.DownloadEntry, patch func(e *entity.DownloadEntry)) entity.DownloadEntry {
	updated, err := d.builder.ToEntry(archiveOf(entry))
	if err != nil {
		d.log.Warn("Cannot rebuild entry", slog.String("path", entry.RawFilePath), slog.Any("error", err))
		patch(&entry)

		return entry
	}

	return *updated
}

func archiveOf(entry entity.DownloadEntry) entity.ArchiveFile {
	return entity.ArchiveFile{
		Path:    entry.RawFilePath,
		Size:    entry.FileSize,
		ModTime: entry.FileTime,
	}
}

type bulkReport struct {
	entity.BulkReport
}

func newReport() *bulkReport {
	return &bulkReport{entity.BulkReport{
		ID:     uuid.NewString(),
		Errors: make(map[string]string),
	}}
}

func (r *bulkReport) fail(entry entity.DownloadEntry, err error) {
	r.Failed++
	r.Errors[entry.RawFilePath] = err.Error()
}
