package consolidate

import (
	"fmt"
	"strings"

	"github.com/deusflow/ainews/internal/news"
)

var reportInstructions = []string{
	"You are an expert AI news editor and technical report writer.",
	"Produce a FULL, self-contained daily report in **HTML5 only** (do not use Markdown).",
	"Constraints and format:",
	"- Output a valid, standalone HTML document: include <!DOCTYPE html>, <html>, <head>, and <body>.",
	"- Add a <head> with a <style> block for clean, modern email-friendly formatting:",
	"    * Font: system-ui or sans-serif.",
	"    * Light background (#f9f9f9) with card-like white sections and subtle shadows.",
	"    * Use padding, spacing, and <h1>/<h2> headings for readability.",
	"- At the top: include an <h1> titled 'AI Daily Report' and an **Executive Summary** (3-5 sentences).",
	"- Cluster and deduplicate: combine highly similar items into one topic section.",
	"- Each topic section should include:",
	"    * A short <h2> heading (the theme/topic).",
	"    * A descriptive summary (3-6 sentences).",
	"    * 2-4 key bullet takeaways (<ul><li>).",
	"    * At most one inline image if provided (with alt text).",
	"    * A 'Read more' link to the best single source.",
	"- At the end: add a 'Key Takeaways' section in bullet points.",
	"- Keep tone precise, professional, and neutral (no hype).",
	"- Ensure everything is self-contained: no external CSS, JS, or links except for sources.",
	"Items (one per line):",
}

// BuildPrompt renders the instruction block followed by one line per item,
// for at most maxItems items.
func BuildPrompt(ranked []news.Item, maxItems int) string {
	lines := make([]string, 0, len(reportInstructions)+len(ranked))
	lines = append(lines, reportInstructions...)
	for _, it := range limit(ranked, maxItems) {
		lines = append(lines, promptLine(it))
	}
	return strings.Join(lines, "\n")
}

func promptLine(it news.Item) string {
	image := ""
	if img := flatten(it.ImageURL); img != "" {
		image = " image_url=" + img
	}
	return fmt.Sprintf("- [source=%s] title=%s date=%s url=%s%s summary=%s",
		flatten(it.Source),
		flatten(it.Title),
		it.PublishedISO(),
		flatten(it.URL),
		image,
		flatten(it.Summary),
	)
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// flatten collapses line breaks to spaces and trims the result.
func flatten(s string) string {
	return strings.TrimSpace(lineBreaks.Replace(s))
}

func limit(items []news.Item, n int) []news.Item {
	if n <= 0 {
		return nil
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}
