package cast

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/takeiteasy/cast/cpp"
)

// ReportError writes err to w; when it carries a source position, the
// offending line is shown with a caret under the column.
func ReportError(w io.Writer, err error) {
	fmt.Fprintln(w, err)

	diag, ok := err.(cpp.Diagnostic)
	if !ok {
		return
	}
	f, ferr := os.Open(diag.Filename)
	if ferr != nil {
		return
	}
	defer f.Close()

	b := bufio.NewReader(f)
	lineno := 1
	for {
		line, rerr := b.ReadString('\n')
		if lineno == diag.Line {
			fmt.Fprintf(w, "%s", line)
			if len(line) == 0 || line[len(line)-1] != '\n' {
				fmt.Fprintln(w, "")
			}
			col := 0
			for _, v := range line {
				col++
				if col == diag.Col {
					fmt.Fprintln(w, "^")
					break
				}
				if v == '\t' {
					fmt.Fprint(w, "\t")
				} else {
					fmt.Fprint(w, " ")
				}
			}
			break
		}
		lineno++
		if rerr != nil {
			break
		}
	}
}
