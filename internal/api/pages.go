package api

import (
	"embed"
	"html/template"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfisher/mailshare/internal/present"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/search"
	"github.com/robfisher/mailshare/internal/tagcloud"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var pageFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
	"contact": func(c search.ContactInfo) string {
		if c.Name == "" {
			return c.Address
		}
		return c.Name + " <" + c.Address + ">"
	},
}

func parsePages() *template.Template {
	return template.Must(template.New("pages").Funcs(pageFuncs).ParseFS(templateFS, "templates/*.html"))
}

// handleStatic serves embedded assets under /static/.
func handleStatic(w http.ResponseWriter, r *http.Request) {
	name := "static/" + strings.TrimPrefix(r.URL.Path, "/static/")
	content, err := staticFS.ReadFile(path.Clean(name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(content)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data interface{}) {
	var b strings.Builder
	if err := s.pages.ExecuteTemplate(&b, name, data); err != nil {
		s.logger.Error("failed to render page", "page", name, "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) pageError(w http.ResponseWriter, status int, msg string) {
	s.render(w, status, "error.html", map[string]interface{}{
		"Title":   http.StatusText(status),
		"URL":     "",
		"Message": msg,
	})
}

type indexPage struct {
	Title    string
	URL      string
	Team     int64
	Teams    []tagcloud.Team
	TagCloud template.HTML
}

// handleIndexPage shows the team selector and the cached cloud of the
// selected team.
func (s *Server) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	page := indexPage{Title: "mailshare", Team: tagcloud.AllTeams, Teams: s.teams()}
	if v := r.URL.Query().Get("team"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			page.Team = id
		}
	}
	if s.svc.Clouds != nil {
		cloud, err := s.svc.Clouds.Get(r.Context(), page.Team)
		if err != nil {
			s.logger.Error("failed to get tag cloud", "team", page.Team, "error", err)
		}
		page.TagCloud = cloud
	}
	s.render(w, http.StatusOK, "index.html", page)
}

type resultRow struct {
	query.MailSummary
	Link     string
	TagsHTML template.HTML
}

type searchPage struct {
	Title       string
	URL         string
	Description template.HTML
	HiddenForm  template.HTML
	NextField   string
	Total       int
	Rows        []resultRow
	TagCloud    template.HTML
	TopSenders  template.HTML
}

func mailLink(id int64, srch *search.Search) string {
	return "/mail/" + strconv.FormatInt(id, 10) + "?url=" + url.QueryEscape(srch.URLPath())
}

// handleSearchPage renders a search: its description, the refine form,
// the results and the tag cloud and top senders of the whole result set.
func (s *Server) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	if s.svc.Engine == nil {
		s.pageError(w, http.StatusServiceUnavailable, "Database not available")
		return
	}
	ctx := r.Context()
	srch := search.FromValues(r.URL.Query())

	ids, err := s.resultIDs(ctx, srch)
	if err != nil {
		s.logger.Error("search failed", "url", srch.URLPath(), "error", err)
		s.pageError(w, http.StatusInternalServerError, "Search failed")
		return
	}
	shown := ids
	if limit := s.cfg.Server.ResultLimit; limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	mails, err := s.svc.Engine.Summaries(ctx, shown)
	if err != nil {
		s.logger.Error("failed to list mails", "error", err)
		s.pageError(w, http.StatusInternalServerError, "Failed to retrieve mails")
		return
	}
	counts, err := s.svc.Engine.TagCounts(ctx, ids)
	if err != nil {
		s.logger.Error("failed to count tags", "error", err)
		s.pageError(w, http.StatusInternalServerError, "Failed to count tags")
		return
	}
	senders, err := s.svc.Engine.SenderCounts(ctx, ids, s.cfg.TagCloud.TopSenders)
	if err != nil {
		s.logger.Error("failed to count senders", "error", err)
		s.pageError(w, http.StatusInternalServerError, "Failed to count senders")
		return
	}

	page := searchPage{
		Title:       "mailshare search",
		URL:         srch.URLPath(),
		Description: srch.DescriptiveHTML(ctx, s.svc.Directory),
		HiddenForm:  srch.HiddenFormHTML(),
		NextField:   srch.NextFullTextFieldName(),
		Total:       len(ids),
		TagCloud:    present.TagCloud(counts, srch),
		TopSenders:  present.TopSenders(senders, srch),
	}
	for _, m := range mails {
		page.Rows = append(page.Rows, resultRow{
			MailSummary: m,
			Link:        mailLink(m.ID, srch),
			TagsHTML:    present.MailTags(m.ID, m.Tags, srch),
		})
	}
	s.render(w, http.StatusOK, "search.html", page)
}

type mailPage struct {
	Title    string
	URL      string
	Mail     *query.MailDetail
	Sender   template.HTML
	BodyHTML template.HTML
	TagsHTML template.HTML
}

// handleMailPage shows one mail. "url" is the search it was opened from.
func (s *Server) handleMailPage(w http.ResponseWriter, r *http.Request) {
	if s.svc.Engine == nil {
		s.pageError(w, http.StatusServiceUnavailable, "Database not available")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.pageError(w, http.StatusBadRequest, "Mail ID must be a number")
		return
	}
	mail, err := s.svc.Engine.GetMail(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get mail", "id", id, "error", err)
		s.pageError(w, http.StatusInternalServerError, "Failed to retrieve mail")
		return
	}
	if mail == nil {
		s.pageError(w, http.StatusNotFound, "Mail not found")
		return
	}
	srch := search.FromURL(r.URL.Query().Get("url"))

	s.render(w, http.StatusOK, "mail.html", mailPage{
		Title:    mail.Subject,
		URL:      srch.URLPath(),
		Mail:     mail,
		Sender:   search.ContactHTML(r.Context(), s.svc.Directory, mail.SenderID),
		BodyHTML: present.PlainTextHTML(mail.Body),
		TagsHTML: present.MailTags(mail.ID, mail.Tags, srch),
	})
}
