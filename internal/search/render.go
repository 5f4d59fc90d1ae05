package search

import (
	"context"
	"html/template"
	"strings"
)

const unknownHTML = "unknown"

// removeLinkHTML renders the "[x]" affordance that drops p from current.
func removeLinkHTML(current *Search, p Parameter) string {
	removed := current.Without(p.Kind(), p.Value())
	return `[<a href="` + template.HTMLEscapeString(removed.URLPath()) + `">x</a>]`
}

// optionLinkHTML renders a link to current with p swapped for kind at the
// same index.
func optionLinkHTML(current *Search, p Parameter, kind Kind, value, text string) string {
	swapped := current.Replace(p, kind, value)
	return `<a href="` + template.HTMLEscapeString(swapped.URLPath()) + `">` + text + `</a>`
}

// optionBarHTML renders "[a|b|c]" where the option equal to selected is plain
// text and every other option links to the swap.
func optionBarHTML(current *Search, p Parameter, options []option, selected int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, o := range options {
		if i > 0 {
			b.WriteByte('|')
		}
		if i == selected {
			b.WriteString(o.text)
			continue
		}
		b.WriteString(optionLinkHTML(current, p, o.kind, o.value, o.text))
	}
	b.WriteByte(']')
	return b.String()
}

type option struct {
	kind  Kind
	value string
	text  string
}

// ContactHTML renders a contact for inline display, or "unknown" when the
// contact cannot be resolved.
func ContactHTML(ctx context.Context, dir Directory, id int64) template.HTML {
	if dir == nil {
		return unknownHTML
	}
	c, err := dir.LookupContact(ctx, id)
	if err != nil || c == nil {
		return unknownHTML
	}
	name := c.Name
	if name == "" {
		name = c.Address
	}
	return template.HTML(`<span class="contact" title="` + template.HTMLEscapeString(c.Address) + `">` +
		template.HTMLEscapeString(name) + `</span>`)
}

// TagHTML renders a tag name for inline display, or "unknown" when the tag
// cannot be resolved.
func TagHTML(ctx context.Context, dir Directory, id int64) template.HTML {
	if dir == nil {
		return unknownHTML
	}
	t, err := dir.LookupTag(ctx, id)
	if err != nil || t == nil {
		return unknownHTML
	}
	return template.HTML(`<span class="tag">` + template.HTMLEscapeString(t.Name) + `</span>`)
}
