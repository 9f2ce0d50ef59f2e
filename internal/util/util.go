package util

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"strings"
)

func GetIDFromString(str *string) string {
	hasher := sha1.New()
	hasher.Write([]byte(*str))

	return hex.EncodeToString(hasher.Sum(nil))
}

// Stem returns the file name without its last extension.
func Stem(path string) string {
	name := filepath.Base(path)

	return strings.TrimSuffix(name, filepath.Ext(name))
}

// IsTrue reports whether a sidecar value is the literal "true", ignoring case and surrounding spaces.
func IsTrue(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "true")
}
