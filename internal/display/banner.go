package display

import (
	"fmt"
	"io"

	"github.com/backmassage/condor/internal/term"
)

// PrintBanner prints the ASCII art banner; uses Magenta if colors are enabled.
func PrintBanner(w io.Writer, version string) {
	fmt.Fprint(w, term.Paint(term.Magenta, `                     _
  ___ ___  _ __   __| | ___  _ __
 / __/ _ \| '_ \ / _`+"`"+` |/ _ \| '__|
| (_| (_) | | | | (_| | (_) | |
 \___\___/|_| |_|\__,_|\___/|_|
`))
	fmt.Fprintln(w, term.Paint(term.Dim, "  v"+version))
}
