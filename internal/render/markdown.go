package render

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	glamouransi "github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/reflow/wordwrap"
)

const defaultWidth = 80

var (
	rendererMu sync.Mutex
	renderers  = map[int]*glamour.TermRenderer{}
)

// Markdown renders input for a terminal of the given width. When the renderer
// cannot be built or fails, the input is returned word wrapped.
func Markdown(input string, width int) string {
	input = strings.TrimRight(input, "\n")
	if input == "" {
		return ""
	}
	if width <= 0 {
		width = defaultWidth
	}
	r := markdownRenderer(width)
	if r == nil {
		return wordwrap.String(input, width)
	}
	out, err := r.Render(input)
	if err != nil {
		return wordwrap.String(input, width)
	}
	return strings.TrimRight(out, "\n")
}

func markdownRenderer(width int) *glamour.TermRenderer {
	rendererMu.Lock()
	defer rendererMu.Unlock()
	if r, ok := renderers[width]; ok {
		return r
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(reportStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	renderers[width] = r
	return r
}

func reportStyle() glamouransi.StyleConfig {
	style := styles.DarkStyleConfig
	style.Document.StylePrimitive.BlockPrefix = ""
	style.Document.StylePrimitive.BlockSuffix = ""
	zero := uint(0)
	style.Document.Margin = &zero
	return style
}
