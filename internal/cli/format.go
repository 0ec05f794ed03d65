package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/zmanda/manifest-restore/internal/engine"
)

var (
	configColor       = color.New(color.FgYellow, color.Bold)
	notInstalledColor = color.New(color.FgHiBlack)
	codeColor         = color.New(color.FgCyan)
)

// classColor returns the color used for a report class indicator.
func classColor(c engine.Class) *color.Color {
	switch c {
	case engine.ClassConfig:
		return configColor
	case engine.ClassNotInstalled:
		return notInstalledColor
	default:
		return nil
	}
}

// printReport writes the change report, coloring the code and class
// indicator unless colors are disabled.
func printReport(w io.Writer, report *engine.Report) error {
	if color.NoColor {
		return report.Write(w)
	}
	for _, res := range report.Results {
		if !res.Code.Actionable() {
			continue
		}
		class := string(res.Class.Char())
		if clr := classColor(res.Class); clr != nil {
			class = clr.Sprint(class)
		}
		if _, err := fmt.Fprintf(w, "%s %s %s\n", codeColor.Sprint(res.Code.String()), class, res.Path); err != nil {
			return err
		}
	}
	return nil
}
