package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Key namespaces. Keeping these in one place makes it possible to
// invalidate a whole class of entries (see the cache CLI command).
const (
	NamespaceAdvisory = "advisory"
	NamespaceHosting  = "hosting"
	NamespaceTracker  = "tracker"
	NamespaceHTTP     = "http"
)

// AdvisoryKey builds the cache key for an advisory lookup. The key is
// derived from the full query identity (ecosystem, package, constraint)
// so that distinct constraints never share an entry.
func AdvisoryKey(ecosystem, name, constraint string) string {
	return hashKey(NamespaceAdvisory, ecosystem, name, constraint)
}

// HostingKey builds the cache key for repository hosting metadata.
func HostingKey(owner, repo, resource string) string {
	return hashKey(NamespaceHosting, owner, repo, resource)
}

// TrackerKey builds the cache key for an error-tracker resource.
func TrackerKey(org, resource string) string {
	return hashKey(NamespaceTracker, org, resource)
}

// HTTPKey builds the cache key for a raw HTTP response.
func HTTPKey(method, url string) string {
	return hashKey(NamespaceHTTP, method, url)
}

// Namespace extracts a key's namespace prefix, or the whole key when it
// carries none.
func Namespace(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// hashKey generates a cache key by hashing the components.
// The key format is: namespace:hash(parts...)
func hashKey(namespace string, parts ...any) string {
	data, _ := json.Marshal(parts)
	hash := sha256.Sum256(data)
	// Full SHA-256 (64 hex chars) to prevent collisions
	return fmt.Sprintf("%s:%s", namespace, hex.EncodeToString(hash[:]))
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
