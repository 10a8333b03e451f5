// Package cache provides the optional result cache consulted by the step
// executor. Keys are stable across processes: tool name plus a canonical
// serialization of the resolved arguments.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Cache is the contract the engine consumes. Implementations must be safe
// for concurrent use: steps of one wave may hit the cache simultaneously.
type Cache interface {
	// Get returns the cached result for the invocation, and whether one
	// was present.
	Get(ctx context.Context, toolName string, args map[string]any) (any, bool, error)

	// Set stores the result of a successful invocation.
	Set(ctx context.Context, toolName string, args map[string]any, result any) error
}

// Key derives the stable cache key: sha256 over the tool name and the
// canonical JSON of the args (encoding/json sorts map keys, which is the
// canonicalization relied on here).
func Key(toolName string, args map[string]any) string {
	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write([]byte{0})
	if encoded, err := json.Marshal(args); err == nil {
		h.Write(encoded)
	}
	return hex.EncodeToString(h.Sum(nil))
}
