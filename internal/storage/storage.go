// Package storage implements the filesystem and S3-compatible backends
// behind core.Storage.
package storage

// keyUnder derives the S3 object key for relativePath under prefix, per
// SPEC_FULL.md §4.F: strings.Trim(prefix, "/") + "/" + relativePath, or
// relativePath alone when the trimmed prefix is empty.
func keyUnder(prefix, relativePath string) string {
	trimmed := trimSlashes(prefix)
	if trimmed == "" {
		return relativePath
	}
	return trimmed + "/" + relativePath
}

func trimSlashes(s string) string {
	start, end := 0, len(s)
	for start < end && s[start] == '/' {
		start++
	}
	for end > start && s[end-1] == '/' {
		end--
	}
	return s[start:end]
}

// compile-time interface checks live in storage_test.go, which assigns a
// nil *Filesystem and a nil *S3 to core.Storage variables.
