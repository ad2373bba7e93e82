package filesystem

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize converts path into the engine's canonical form: UTF-8,
// forward-slash separated, absolute-from-root, with no empty segments
// and no "." or ".." segments, NFC-normalized. "/" is returned for the
// root.
//
// NFC normalization resolves an ambiguity spec.md leaves open: two
// substrates may represent the same accented filename with different
// Unicode decompositions (a native filesystem commonly preserves
// NFD-decomposed names on some platforms, while a browser-local store
// tends to hand back whatever normalization form JavaScript string
// literals use). Without normalizing, byte-exact path equality (as
// spec.md §3 requires) would spuriously treat the same logical path on
// two substrates as different paths.
func Normalize(path string) string {
	path = norm.NFC.String(path)
	path = strings.ReplaceAll(path, "\\", "/")

	segments := strings.Split(path, "/")
	normalized := make([]string, 0, len(segments))
	for _, segment := range segments {
		if segment == "" || segment == "." {
			continue
		}
		if segment == ".." {
			if len(normalized) > 0 {
				normalized = normalized[:len(normalized)-1]
			}
			continue
		}
		normalized = append(normalized, segment)
	}

	if len(normalized) == 0 {
		return "/"
	}
	return "/" + strings.Join(normalized, "/")
}

// Join joins a normalized parent path with a child name and normalizes
// the result.
func Join(parent, child string) string {
	if parent == "/" {
		return Normalize("/" + child)
	}
	return Normalize(parent + "/" + child)
}

// Base returns the final path segment (the basename) of a normalized
// path. Base("/") returns "".
func Base(path string) string {
	if path == "/" {
		return ""
	}
	idx := strings.LastIndexByte(path, '/')
	return path[idx+1:]
}

// Parent returns the normalized parent path of a normalized path.
// Parent("/") returns "/".
func Parent(path string) string {
	if path == "/" {
		return "/"
	}
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// Less reports whether a should sort before b for purposes of
// lexicographic-by-basename directory listing order.
func Less(a, b string) bool {
	return Base(a) < Base(b)
}
