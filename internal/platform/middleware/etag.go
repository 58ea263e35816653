package middleware

import (
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// SnapshotVersionKey is the context key under which SnapshotETag stores the
// dataset snapshot version.
const SnapshotVersionKey = "snapshot_version"

// SnapshotETagConfig configures SnapshotETag.
type SnapshotETagConfig struct {
	// Version returns the active snapshot version, or "" when none is loaded.
	Version func() string
	// ExcludePrefixes are path prefixes that never get an ETag.
	ExcludePrefixes []string
}

// SnapshotETag tags GET and HEAD responses with an ETag derived from the
// active snapshot version and the request URI. Every response is a pure
// function of those two, so a matching If-None-Match is answered with 304
// before the handler runs.
func SnapshotETag(config SnapshotETagConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			if hasPrefix(req.URL.Path, config.ExcludePrefixes) {
				return next(c)
			}
			version := ""
			if config.Version != nil {
				version = config.Version()
			}
			if version == "" {
				return next(c)
			}
			c.Set(SnapshotVersionKey, version)

			etag := computeETag(version, req.URL.RequestURI())
			h := c.Response().Header()
			h.Set("ETag", etag)
			h.Set("Cache-Control", "no-cache")

			if inm := req.Header.Get("If-None-Match"); inm != "" && etagMatch(inm, etag) {
				return c.NoContent(http.StatusNotModified)
			}

			if err := next(c); err != nil {
				if !c.Response().Committed {
					h.Del("ETag")
					h.Del("Cache-Control")
				}
				return err
			}
			return nil
		}
	}
}

// computeETag returns a weak ETag over the snapshot version and request URI.
func computeETag(version, uri string) string {
	hash := md5.Sum([]byte(version + "\n" + uri))
	return fmt.Sprintf(`W/"%x"`, hash)
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// etagMatch checks an If-None-Match value against etag. Lists and "*" are
// supported; comparison is weak.
func etagMatch(headerVal, etag string) bool {
	headerVal = strings.TrimSpace(headerVal)
	if headerVal == "*" {
		return true
	}
	for _, candidate := range strings.Split(headerVal, ",") {
		if stripWeakPrefix(strings.TrimSpace(candidate)) == stripWeakPrefix(etag) {
			return true
		}
	}
	return false
}

func stripWeakPrefix(etag string) string {
	return strings.TrimPrefix(etag, `W/`)
}
