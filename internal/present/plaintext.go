package present

import (
	"html"
	"html/template"
	"regexp"
	"strings"
)

var plainTextPattern = regexp.MustCompile(`(?msi)(?P<htmlchars>[<&>])|(?P<space>^[ \t]+)|(?P<lineend>\r\n|\r|\n)|(?P<url>(?:^|\s)(?:http|ftp)://.*?)(\s|$)`)

const tabStop = 4

// PlainTextHTML renders a plain text mail body as HTML. Markup characters
// are escaped, line ends become <br>, leading indentation is kept with
// &nbsp; and http and ftp URLs become links.
func PlainTextHTML(text string) template.HTML {
	var b strings.Builder
	last := 0
	for _, m := range plainTextPattern.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(text[last:m[0]])
		last = m[1]
		match := text[m[0]:m[1]]
		switch {
		case m[2] >= 0:
			b.WriteString(html.EscapeString(match))
		case m[4] >= 0:
			match = strings.ReplaceAll(match, "\t", strings.Repeat("&nbsp;", tabStop))
			b.WriteString(strings.ReplaceAll(match, " ", "&nbsp;"))
		case m[6] >= 0:
			b.WriteString("<br>")
		default:
			url := text[m[8]:m[9]]
			if strings.HasPrefix(url, " ") || strings.HasPrefix(url, "\t") {
				b.WriteString(url[:1])
				url = url[1:]
			} else if strings.HasPrefix(url, "\n") || strings.HasPrefix(url, "\r") {
				b.WriteString("<br>")
				url = url[1:]
			}
			esc := html.EscapeString(url)
			b.WriteString(`<a href="` + esc + `">` + esc + `</a>`)
			switch trail := text[m[10]:m[11]]; trail {
			case "\n", "\r":
				b.WriteString("<br>")
			default:
				b.WriteString(trail)
			}
		}
	}
	b.WriteString(text[last:])
	return template.HTML(b.String())
}
