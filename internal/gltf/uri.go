package gltf

import (
	"net/url"
	"path"
	"strings"
)

// IsDataURI reports whether uri embeds its payload.
func IsDataURI(uri string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(uri)), "data:")
}

// IsExternalURI reports whether uri names a resource outside the asset tree
// (a scheme-qualified URL or an absolute path).
func IsExternalURI(uri string) bool {
	if strings.HasPrefix(uri, "/") {
		return true
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return parsed.Scheme != "" && len(parsed.Scheme) > 1
}

// DecodeURI percent-decodes a relative image URI into a slash path.
func DecodeURI(uri string) (string, error) {
	return url.PathUnescape(uri)
}

// EncodePath percent-escapes each segment of a relative slash path.
func EncodePath(rel string) string {
	segments := strings.Split(rel, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// ReplaceExt swaps the extension of a URI, leaving everything before it
// untouched.
func ReplaceExt(uri, ext string) string {
	return strings.TrimSuffix(uri, path.Ext(uri)) + ext
}
