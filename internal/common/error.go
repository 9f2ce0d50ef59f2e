package common

import "fmt"

var (
	ErrRefreshAlreadyStarted = fmt.Errorf("refresh process has already started")
	ErrEntryNotFound         = fmt.Errorf("entry not found")
	ErrArchiveVanished       = fmt.Errorf("archive vanished")
	ErrMalformedMetadata     = fmt.Errorf("malformed metadata")
	ErrNoMetaPath            = fmt.Errorf("entry has no metadata file")
	ErrLookupMiss            = fmt.Errorf("lookup returned no match")
	ErrLookupFailure         = fmt.Errorf("lookup failed")
	ErrNotCached             = fmt.Errorf("lookup result is not cached")
	ErrInstallFailed         = fmt.Errorf("install failed")
	ErrMetaNotRemoved        = fmt.Errorf("archive removed but metadata file remains")
)
