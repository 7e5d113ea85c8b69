// Package depot stores content as gzip objects named by SHA-1 under a
// four-level shard tree.
package depot

import (
	"path/filepath"
	"strings"

	"romba-go/internal/model"
)

// ShardPath returns the path of the object for sha1 relative to a depot
// root: xx/yy/zz/ww/<sha1>.gz. It returns "" when sha1 is not 40 hex
// characters.
func ShardPath(sha1 string) string {
	sha1 = strings.ToLower(strings.TrimSpace(sha1))
	if !model.IsHex(sha1, model.SHA1Length) {
		return ""
	}
	return filepath.Join(sha1[0:2], sha1[2:4], sha1[4:6], sha1[6:8], sha1+".gz")
}

// sha1FromName returns the SHA-1 an object file name encodes.
func sha1FromName(name string) (string, bool) {
	s, ok := strings.CutSuffix(name, ".gz")
	if !ok || !model.IsHex(s, model.SHA1Length) {
		return "", false
	}
	return strings.ToLower(s), true
}
