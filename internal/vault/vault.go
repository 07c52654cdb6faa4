// Package vault provides the remote stores backups are uploaded to.
package vault

import (
	"path/filepath"
	"strings"
)

// objectName returns the name an object is stored under: the fingerprint
// followed by the lowercased extension of the original file name.
func objectName(fingerprint, name string) string {
	return fingerprint + strings.ToLower(filepath.Ext(name))
}
