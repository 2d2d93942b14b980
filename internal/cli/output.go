package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Output colors. fatih/color disables them when stdout is not a terminal.
var (
	brand  = color.New(color.FgHiGreen, color.Bold)
	subtle = color.New(color.FgHiBlack)
	warn   = color.New(color.FgYellow)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
)

func statusIcon(ok bool) string {
	if ok {
		return good.Sprint("✓")
	}
	return bad.Sprint("✗")
}

func header(w io.Writer, title string) {
	fmt.Fprintf(w, "%s %s\n\n", brand.Sprint("graphedit"), subtle.Sprint(title))
}
