// Package present renders the HTML fragments shown around search results:
// tag clouds, top senders, per-mail tag lists and the multi-select tag bar.
// Every link is derived from the search the fragment is shown for.
package present

import (
	"html/template"
	"strconv"
	"strings"

	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/search"
)

// CloudLevels is the number of font-size classes a tag cloud uses.
const CloudLevels = 5

// DefaultTopSenders is the length of the top senders list.
const DefaultTopSenders = 5

func href(s *search.Search) string {
	return template.HTMLEscapeString(s.URLPath())
}

func jsString(s string) string {
	return template.HTMLEscapeString(template.JSEscapeString(s))
}

// cloudLevel maps count onto 1..CloudLevels linearly between lo and hi.
// When every tag has the same count the middle level is used.
func cloudLevel(count, lo, hi int64) int {
	if hi <= lo {
		return (CloudLevels + 1) / 2
	}
	return 1 + int((count-lo)*(CloudLevels-1)/(hi-lo))
}

// TagCloud renders counts as links to link narrowed by each tag. counts is
// rendered in the order given.
func TagCloud(counts []query.TagCount, link *search.Search) template.HTML {
	if len(counts) == 0 {
		return ""
	}
	lo, hi := counts[0].Count, counts[0].Count
	for _, c := range counts[1:] {
		if c.Count < lo {
			lo = c.Count
		}
		if c.Count > hi {
			hi = c.Count
		}
	}

	var b strings.Builder
	for i, c := range counts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(`<a class="tag_cloud_` + strconv.Itoa(cloudLevel(c.Count, lo, hi)) + `" href="` +
			href(link.And(search.ForTagID(c.ID))) + `" title="` + strconv.FormatInt(c.Count, 10) + `">` +
			template.HTMLEscapeString(c.Name) + `</a>`)
	}
	return template.HTML(b.String())
}

// TopSenders renders an ordered list of senders, each linking to current
// narrowed by that sender. counts should already be sorted and truncated.
func TopSenders(counts []query.SenderCount, current *search.Search) template.HTML {
	var b strings.Builder
	b.WriteString("<ol>")
	for _, c := range counts {
		name := c.Name
		if name == "" {
			name = c.Address
		}
		b.WriteString(`<li><a href="` + href(current.And(search.ForSenderID(c.ID))) +
			`" title="` + template.HTMLEscapeString(c.Address) + `">` + template.HTMLEscapeString(name) +
			`</a> : ` + strconv.FormatInt(c.Count, 10) + `</li>`)
	}
	b.WriteString("</ol>")
	return template.HTML(b.String())
}

// MailTags renders the tags on one mail. Each links to current narrowed by
// the tag and carries a delete affordance.
func MailTags(mailID int64, tags []search.TagInfo, current *search.Search) template.HTML {
	id := strconv.FormatInt(mailID, 10)
	var b strings.Builder
	for i, t := range tags {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(`<span class="mail_tag"><a href="` + href(current.And(search.ForTagID(t.ID))) + `">` +
			template.HTMLEscapeString(t.Name) + `</a> <a href="#" class="tag_delete" onclick="return delete_tag(` +
			id + `, ` + strconv.FormatInt(t.ID, 10) + `);">x</a></span>`)
	}
	return template.HTML(b.String())
}

// UndoDelete renders the affordance that re-adds a tag just removed from a
// mail.
func UndoDelete(mailID int64, tag search.TagInfo) template.HTML {
	return template.HTML(` <span class="tag_undo">Removed ` + template.HTMLEscapeString(tag.Name) +
		` <a href="#" onclick="add_tag_to_email(` + strconv.FormatInt(mailID, 10) + `, '` +
		jsString(tag.Name) + `'); return false;">undo</a></span>`)
}

// MultiBar renders the tags present on a selection of mails as
// "name (k/n)". Tags on only some of the selection get an add affordance
// that applies them to the rest; every tag gets a remove affordance. The
// affordances address the selection with mail id -1.
func MultiBar(counts []query.TagCount, selected int, current *search.Search) template.HTML {
	if selected == 0 {
		return ""
	}
	n := strconv.Itoa(selected)
	var b strings.Builder
	b.WriteString(`<span class="multi_bar_count">` + n + ` selected</span>`)
	for _, c := range counts {
		b.WriteString(` <span class="multi_tag"><a href="` + href(current.And(search.ForTagID(c.ID))) + `">` +
			template.HTMLEscapeString(c.Name) + `</a> (` + strconv.FormatInt(c.Count, 10) + `/` + n + `)`)
		if c.Count < int64(selected) {
			b.WriteString(` <a href="#" class="tag_add" onclick="add_tag_to_email(-1, '` + jsString(c.Name) +
				`'); return false;">+</a>`)
		}
		b.WriteString(` <a href="#" class="tag_delete" onclick="return delete_tag(-1, ` +
			strconv.FormatInt(c.ID, 10) + `);">x</a></span>`)
	}
	return template.HTML(b.String())
}
