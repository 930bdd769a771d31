package cpp

import (
	"path/filepath"
	"strings"
)

// Include search. Quoted includes try the including file's directory
// (in cpp.go), then the user paths, then the system paths. Angle
// includes consult the embedded standard headers first when enabled,
// then user paths, then system paths. Results are cached per
// (filename, is_system) so repeated includes avoid stat calls.

const stdPrefix = "<std>/"

// embeddedHeader resolves a pseudo-path produced by the std-header
// search to its prepared contents.
func (pp *Preprocessor) embeddedHeader(path string) ([]byte, bool) {
	if !strings.HasPrefix(path, stdPrefix) {
		return nil, false
	}
	text, ok := stdHeaders[strings.TrimPrefix(path, stdPrefix)]
	if !ok {
		return nil, false
	}
	buf := make([]byte, len(text)+2)
	copy(buf, text)
	buf[len(text)] = '\n'
	return buf, true
}

func cacheKey(filename string, isSystem bool) string {
	if isSystem {
		return "s:" + filename
	}
	return "q:" + filename
}

// searchIncludePaths resolves filename against the search path list,
// returning the path to open. The resolved index is remembered for
// #include_next.
func (pp *Preprocessor) searchIncludePaths(filename string, isSystem bool) (string, bool) {
	if filepath.IsAbs(filename) {
		return filename, fileExists(filename)
	}

	if cached, ok := pp.includeCache.Lookup(cacheKey(filename, isSystem)); ok {
		return cached.(string), true
	}

	if isSystem && pp.UseStdInc {
		if _, ok := stdHeaders[filename]; ok {
			path := stdPrefix + filename
			pp.includeCache.Put(cacheKey(filename, isSystem), path)
			return path, true
		}
	}

	paths := append(append([]string{}, pp.includePaths...), pp.sysIncludePaths...)
	for i, dir := range paths {
		path := filepath.Join(dir, filename)
		if fileExists(path) {
			pp.includeCache.Put(cacheKey(filename, isSystem), path)
			pp.includeNextIdx = i + 1
			return path, true
		}
	}
	return "", false
}

// searchIncludeNext resumes the search after the entry that produced
// the including file.
func (pp *Preprocessor) searchIncludeNext(filename string) (string, bool) {
	paths := append(append([]string{}, pp.includePaths...), pp.sysIncludePaths...)
	for ; pp.includeNextIdx < len(paths); pp.includeNextIdx++ {
		path := filepath.Join(paths[pp.includeNextIdx], filename)
		if fileExists(path) {
			pp.includeNextIdx++
			return path, true
		}
	}
	return "", false
}
