// Package metaadapter reads and writes archive sidecar files.
//
// A sidecar is an INI file named "<archive>.meta" with a [General] section. Keys are
// case-sensitive and are written back exactly as the host application expects them.
// Keys the record does not know about are kept on merge.
package metaadapter

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jgivc/dlmanager/internal/common"
	"github.com/jgivc/dlmanager/internal/entity"
	"github.com/jgivc/dlmanager/internal/util"
	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

const (
	tmpSuffix = ".tmp"
	fileMode  = 0o644
)

func init() {
	// key=value without padding, like QSettings writes it
	ini.PrettyFormat = false
}

var loadOptions = ini.LoadOptions{
	Insensitive:             false,
	IgnoreInlineComment:     true,
	SkipUnrecognizableLines: true,
	KeyValueDelimiters:      "=",
}

var knownKeys = map[string]struct{}{
	entity.MetaKeyName:        {},
	entity.MetaKeyModName:     {},
	entity.MetaKeyVersion:     {},
	entity.MetaKeyInstalled:   {},
	entity.MetaKeyRemoved:     {},
	entity.MetaKeyRepository:  {},
	entity.MetaKeyGameName:    {},
	entity.MetaKeyModID:       {},
	entity.MetaKeyFileID:      {},
	entity.MetaKeyFileTime:    {},
	entity.MetaKeyURL:         {},
	entity.MetaKeyDescription: {},
}

type metaStore struct {
	fs  afero.Fs
	log *slog.Logger
}

func NewMetaStore(log *slog.Logger) *metaStore {
	return NewMetaStoreWithFS(afero.NewOsFs(), log)
}

func NewMetaStoreWithFS(fs afero.Fs, log *slog.Logger) *metaStore {
	return &metaStore{
		fs:  fs,
		log: log.With(slog.String("item", "MetaStore")),
	}
}

// Read returns nil without error when the sidecar does not exist or holds no keys.
// A sidecar that cannot be parsed yields an error wrapping common.ErrMalformedMetadata.
func (s *metaStore) Read(path string) (*entity.MetadataRecord, error) {
	file, err := s.load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	values := recordSection(file).KeysHash()
	if len(values) == 0 {
		return nil, nil
	}

	return toRecord(values), nil
}

// Write creates or replaces the sidecar. With mergeExisting the keys of the current file are
// loaded first so that keys outside the record survive.
func (s *metaStore) Write(path string, rec *entity.MetadataRecord, mergeExisting bool) error {
	if rec == nil {
		return fmt.Errorf("cannot write empty record")
	}

	file := ini.Empty(loadOptions)

	if mergeExisting {
		existing, err := s.load(path)
		switch {
		case err == nil:
			file = existing
		case errors.Is(err, os.ErrNotExist):
		default:
			s.log.Warn("Cannot merge existing metadata, overwriting", slog.String("path", path), slog.Any("error", err))
		}
	}

	sec := file.Section(entity.MetaSection)
	for _, kv := range fromRecord(rec) {
		sec.Key(kv[0]).SetValue(sanitize(kv[1]))
	}

	return s.save(path, file)
}

// SetValues updates single keys of an existing sidecar.
func (s *metaStore) SetValues(path string, values map[string]string) error {
	file, err := s.load(path)
	if err != nil {
		return err
	}

	sec := file.Section(entity.MetaSection)
	for _, key := range sortedKeys(values) {
		sec.Key(key).SetValue(sanitize(values[key]))
	}

	return s.save(path, file)
}

func (s *metaStore) Exists(path string) bool {
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		s.log.Debug("Cannot check metadata file", slog.String("path", path), slog.Any("error", err))
	}

	return ok
}

func (s *metaStore) load(path string) (*ini.File, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, err
	}

	// undecodable bytes are dropped
	data = bytes.ToValidUTF8(data, nil)

	file, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrMalformedMetadata, path, err)
	}

	return file, nil
}

func (s *metaStore) save(path string, file *ini.File) error {
	tmpPath := path + tmpSuffix

	f, err := s.fs.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("cannot create metadata file: %w", err)
	}

	if _, err := file.WriteTo(f); err != nil {
		f.Close()
		_ = s.fs.Remove(tmpPath)

		return fmt.Errorf("cannot write metadata file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		_ = s.fs.Remove(tmpPath)

		return fmt.Errorf("cannot sync metadata file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)

		return fmt.Errorf("cannot close metadata file: %w", err)
	}

	if err := s.fs.Rename(tmpPath, path); err != nil {
		_ = s.fs.Remove(tmpPath)

		return fmt.Errorf("cannot replace metadata file: %w", err)
	}

	return nil
}

// recordSection picks [General] when present, then the first named section, then keys outside
// any section.
func recordSection(file *ini.File) *ini.Section {
	if sec, err := file.GetSection(entity.MetaSection); err == nil {
		return sec
	}

	for _, sec := range file.Sections() {
		if sec.Name() != ini.DefaultSection {
			return sec
		}
	}

	return file.Section(ini.DefaultSection)
}

func toRecord(values map[string]string) *entity.MetadataRecord {
	rec := &entity.MetadataRecord{
		Name:        values[entity.MetaKeyName],
		ModName:     values[entity.MetaKeyModName],
		Version:     values[entity.MetaKeyVersion],
		Installed:   util.IsTrue(values[entity.MetaKeyInstalled]),
		Removed:     util.IsTrue(values[entity.MetaKeyRemoved]),
		Repository:  values[entity.MetaKeyRepository],
		GameName:    values[entity.MetaKeyGameName],
		ModID:       values[entity.MetaKeyModID],
		FileID:      values[entity.MetaKeyFileID],
		FileTime:    values[entity.MetaKeyFileTime],
		URL:         values[entity.MetaKeyURL],
		Description: values[entity.MetaKeyDescription],
	}

	for key, value := range values {
		if _, known := knownKeys[key]; known {
			continue
		}

		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra[key] = value
	}

	return rec
}

func boolValue(b bool) string {
	if b {
		return entity.MetaTrue
	}

	return entity.MetaFalse
}

// fromRecord lists the key/value pairs to emit, known keys first, then extras sorted by name.
func fromRecord(rec *entity.MetadataRecord) [][2]string {
	pairs := [][2]string{
		{entity.MetaKeyGameName, rec.GameName},
		{entity.MetaKeyModID, rec.ModID},
		{entity.MetaKeyFileID, rec.FileID},
		{entity.MetaKeyURL, rec.URL},
		{entity.MetaKeyName, rec.Name},
		{entity.MetaKeyDescription, rec.Description},
		{entity.MetaKeyModName, rec.ModName},
		{entity.MetaKeyVersion, rec.Version},
		{entity.MetaKeyFileTime, rec.FileTime},
		{entity.MetaKeyRepository, rec.Repository},
		{entity.MetaKeyInstalled, boolValue(rec.Installed)},
		{entity.MetaKeyRemoved, boolValue(rec.Removed)},
	}

	for _, key := range sortedKeys(rec.Extra) {
		if _, known := knownKeys[key]; known {
			continue
		}
		pairs = append(pairs, [2]string{key, rec.Extra[key]})
	}

	return pairs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

// sanitize keeps values on one line and free of backticks, otherwise the ini writer quotes them
// with """ which the host reads as part of the value.
func sanitize(value string) string {
	value = strings.ReplaceAll(value, "\r\n", " ")

	return valueReplacer.Replace(value)
}

var valueReplacer = strings.NewReplacer("\n", " ", "\r", " ", "`", "'")
