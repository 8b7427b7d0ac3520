// Package render converts agent markdown to chat-safe HTML.
package render

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	fencedRe     = regexp.MustCompile("(?s)```(\\w*)\\n(.*?)```")
	inlineCodeRe = regexp.MustCompile("([^`]|^)`([^`]+)`([^`]|$)")
	boldStarRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldUnderRe  = regexp.MustCompile(`__(.+?)__`)
	italicStarRe = regexp.MustCompile(`(^|[^*])\*([^*]+?)\*($|[^*])`)
	strikeRe     = regexp.MustCompile(`~~(.+?)~~`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	bulletRe     = regexp.MustCompile(`(?m)^[\-\*]\s+`)
)

// MarkdownToHTML converts a markdown response into the HTML subset chat
// transports accept: code blocks and inline code are protected before the
// rest of the text is escaped and reformatted.
func MarkdownToHTML(text string) string {
	if text == "" {
		return text
	}

	// Pull code out first so formatting rules never touch it.
	var blocks []string
	text = fencedRe.ReplaceAllStringFunc(text, func(m string) string {
		blocks = append(blocks, m)
		return fmt.Sprintf("\x00BLOCK%d\x00", len(blocks)-1)
	})

	var inlines []string
	text = inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := inlineCodeRe.FindStringSubmatch(m)
		inlines = append(inlines, sub[2])
		return sub[1] + fmt.Sprintf("\x00INLINE%d\x00", len(inlines)-1) + sub[3]
	})

	text = html.EscapeString(text)

	text = boldStarRe.ReplaceAllString(text, "<b>$1</b>")
	text = boldUnderRe.ReplaceAllString(text, "<b>$1</b>")
	text = italicStarRe.ReplaceAllString(text, "$1<i>$2</i>$3")
	text = strikeRe.ReplaceAllString(text, "<s>$1</s>")
	text = headingRe.ReplaceAllString(text, "<b>$1</b>")
	text = bulletRe.ReplaceAllString(text, "• ")

	for i, code := range inlines {
		placeholder := fmt.Sprintf("\x00INLINE%d\x00", i)
		text = strings.Replace(text, placeholder, "<code>"+html.EscapeString(code)+"</code>", 1)
	}

	for i, block := range blocks {
		placeholder := fmt.Sprintf("\x00BLOCK%d\x00", i)
		sub := fencedRe.FindStringSubmatch(block)
		if sub != nil {
			escaped := html.EscapeString(strings.TrimSpace(sub[2]))
			text = strings.Replace(text, placeholder, "<pre>"+escaped+"</pre>", 1)
		} else {
			text = strings.Replace(text, placeholder, block, 1)
		}
	}

	return text
}
