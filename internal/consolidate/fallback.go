package consolidate

import (
	"fmt"
	"html"
	"strings"

	"github.com/deusflow/ainews/internal/news"
)

// RenderFallback produces a minimal HTML list of the first maxItems items.
// Every field is escaped, so the output is safe to embed in an HTML body.
func RenderFallback(ranked []news.Item, maxItems int) string {
	var b strings.Builder
	b.WriteString("<h2>Latest</h2><ul>")

	for i, it := range limit(ranked, maxItems) {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, `<li>[%s] <a href="%s">%s</a> <small>%s</small></li>`,
			html.EscapeString(it.Source),
			html.EscapeString(it.URL),
			html.EscapeString(it.Title),
			html.EscapeString(it.PublishedISO()),
		)
	}

	b.WriteString("</ul>")
	return b.String()
}
