package cpp

import (
	"io"
	"os"
)

// readSource returns the raw bytes of path, reading stdin when path is
// "-" by convention. The buffer is newline- and NUL-terminated.
func readSource(path string) ([]byte, error) {
	var src []byte
	var err error
	if path == "-" {
		src, err = io.ReadAll(os.Stdin)
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if len(src) == 0 || src[len(src)-1] != '\n' {
		src = append(src, '\n')
	}
	src = append(src, 0)
	return src, nil
}

// NewFile registers a source buffer under the next file id. contents
// must be NUL-terminated.
func (pp *Preprocessor) NewFile(name string, contents []byte) *File {
	pp.fileNo++
	f := &File{
		Name:        name,
		FileNo:      pp.fileNo,
		Contents:    contents,
		DisplayName: name,
	}
	pp.inputFiles = append(pp.inputFiles, f)
	return f
}

// InputFiles returns every file read so far, in id order.
func (pp *Preprocessor) InputFiles() []*File {
	return pp.inputFiles
}

// canonicalizeNewline rewrites \r and \r\n to \n in place.
func canonicalizeNewline(src []byte) []byte {
	i, j := 0, 0
	for src[i] != 0 {
		if src[i] == '\r' && src[i+1] == '\n' {
			i += 2
			src[j] = '\n'
			j++
		} else if src[i] == '\r' {
			i++
			src[j] = '\n'
			j++
		} else {
			src[j] = src[i]
			j++
			i++
		}
	}
	src[j] = 0
	return src[:j+1]
}

// removeBackslashNewline splices continuation lines. Removed newlines
// are re-emitted at the next line break so logical line numbers keep
// matching physical ones.
func removeBackslashNewline(src []byte) []byte {
	i, j, n := 0, 0, 0
	for src[i] != 0 {
		if src[i] == '\\' && src[i+1] == '\n' {
			i += 2
			n++
		} else if src[i] == '\n' {
			src[j] = src[i]
			i++
			j++
			for ; n > 0; n-- {
				src[j] = '\n'
				j++
			}
		} else {
			src[j] = src[i]
			i++
			j++
		}
	}
	for ; n > 0; n-- {
		src[j] = '\n'
		j++
	}
	src[j] = 0
	return src[:j+1]
}

func readUniversalChar(src []byte, p, n int) uint32 {
	c := uint32(0)
	for i := 0; i < n; i++ {
		if !isHexDigit(src[p+i]) {
			return 0
		}
		c = c<<4 | uint32(fromHex(src[p+i]))
	}
	return c
}

// convertUniversalChars replaces \u and \U escape sequences with the
// corresponding UTF-8 bytes.
func convertUniversalChars(src []byte) []byte {
	i, j := 0, 0
	for src[i] != 0 {
		switch {
		case src[i] == '\\' && src[i+1] == 'u':
			if c := readUniversalChar(src, i+2, 4); c != 0 {
				i += 6
				j += encodeUTF8(src[j:j+4], 0, c)
			} else {
				src[j] = src[i]
				i++
				j++
			}
		case src[i] == '\\' && src[i+1] == 'U':
			if c := readUniversalChar(src, i+2, 8); c != 0 {
				i += 10
				j += encodeUTF8(src[j:j+4], 0, c)
			} else {
				src[j] = src[i]
				i++
				j++
			}
		case src[i] == '\\':
			src[j] = src[i]
			src[j+1] = src[i+1]
			i += 2
			j += 2
		default:
			src[j] = src[i]
			i++
			j++
		}
	}
	src[j] = 0
	return src[:j+1]
}

// prepareSource runs the translation phases that precede tokenization:
// BOM removal, newline canonicalization, line splicing and universal
// character names.
func prepareSource(src []byte) []byte {
	if len(src) > 3 && src[0] == 0xef && src[1] == 0xbb && src[2] == 0xbf {
		src = src[3:]
	}
	src = canonicalizeNewline(src)
	src = removeBackslashNewline(src)
	src = convertUniversalChars(src)
	return src
}

// TokenizeFile reads, prepares and tokenizes path.
func (pp *Preprocessor) TokenizeFile(path string) (*Token, error) {
	src, err := readSource(path)
	if err != nil {
		return nil, err
	}
	src = prepareSource(pp.arena.Dup(src))
	file := pp.NewFile(path, src)
	return pp.Tokenize(file), nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
