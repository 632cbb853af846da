// Package access maps identities to their object-key namespace and decides
// whether an identity may touch a key. The prefix rule is the entire policy.
package access

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/google/uuid"
)

const uploadsSegment = "uploads/"

// PrefixFor returns the namespace of identity, "users/{identity}/".
func PrefixFor(identity string) string {
	return common.UserPrefixRoot + identity + "/"
}

// Authorize reports whether key lies inside identity's namespace.
func Authorize(identity, key string) bool {
	return strings.HasPrefix(key, PrefixFor(identity))
}

// UploadKey builds a fresh key for a file uploaded by identity:
// "users/{identity}/uploads/{32 hex}_{name}". Directory components of
// filename are dropped.
func UploadKey(identity, filename string) (string, error) {
	name := BaseName(filename)
	if name == "" {
		return "", fmt.Errorf("%w: file name", common.ErrMissingField)
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return PrefixFor(identity) + uploadsSegment + token + "_" + name, nil
}

// BaseName strips everything up to the last '/' or '\' and rejects the
// special names "." and "..".
func BaseName(filename string) string {
	if i := strings.LastIndexAny(filename, `/\`); i >= 0 {
		filename = filename[i+1:]
	}
	filename = strings.TrimSpace(filename)
	if filename == "." || filename == ".." {
		return ""
	}
	return filename
}
