// Package cache keeps entity tags for conditional GETs on public resources.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Store holds the current ETag per resource key. A miss returns ok=false.
type Store interface {
	Get(ctx context.Context, key string) (etag string, ok bool, err error)
	Set(ctx context.Context, key, etag string) error
	Invalidate(ctx context.Context, key string) error
}

// ComputeETag returns the quoted md5 hex digest of v's JSON encoding.
func ComputeETag(v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode etag content: %w", err)
	}
	sum := md5.Sum(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}

// MatchesIfNoneMatch reports whether an If-None-Match header value matches
// etag using weak comparison. It accepts "*" and comma-separated lists.
func MatchesIfNoneMatch(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" || etag == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := opaqueTag(etag)
	for _, candidate := range strings.Split(header, ",") {
		if opaqueTag(candidate) == want {
			return true
		}
	}
	return false
}

func opaqueTag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}
