// Package pathcodec maps document keys to repository file paths and back.
//
// A key's slash separated segments are mirrored as directories under Root,
// and the last segment gets Suffix: "features/17" <-> "specs/features/17.json".
package pathcodec

import (
	"fmt"
	"strings"
)

const (
	// Root is the repository directory that holds every synced document.
	Root = "specs"

	// Suffix is appended to the last key segment.
	Suffix = ".json"
)

// ErrInvalidKey is returned by Encode for keys outside the recognized
// namespace.
type ErrInvalidKey struct {
	Key    string
	Reason string
}

func (err ErrInvalidKey) Error() string {
	return fmt.Sprintf("invalid document key %q: %s", err.Key, err.Reason)
}

// ValidateKey reports whether key can be encoded.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey{Key: key, Reason: "empty"}
	}
	if strings.ContainsAny(key, "\\\x00") {
		return ErrInvalidKey{Key: key, Reason: "contains a backslash or NUL byte"}
	}
	segments := strings.Split(key, "/")
	for _, seg := range segments {
		switch seg {
		case "":
			return ErrInvalidKey{Key: key, Reason: "empty path segment"}
		case ".", "..":
			return ErrInvalidKey{Key: key, Reason: "relative path segment"}
		}
	}
	// A last segment ending in the suffix would decode to a different key.
	if strings.HasSuffix(segments[len(segments)-1], Suffix) {
		return ErrInvalidKey{Key: key, Reason: "ends in " + Suffix}
	}
	return nil
}

// Encode returns the repository path for key.
func Encode(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return Root + "/" + key + Suffix, nil
}

// Decode returns the key for a repository path. ok is false for paths outside
// the namespace, so unrelated repository files are ignored.
func Decode(path string) (key string, ok bool) {
	rest := strings.TrimPrefix(path, Root+"/")
	if rest == path || !strings.HasSuffix(rest, Suffix) {
		return "", false
	}
	key = strings.TrimSuffix(rest, Suffix)
	if ValidateKey(key) != nil {
		return "", false
	}
	return key, true
}

// IsNamespaceDir reports whether dir is Root or a directory below it.
func IsNamespaceDir(dir string) bool {
	return dir == Root || strings.HasPrefix(dir, Root+"/")
}
