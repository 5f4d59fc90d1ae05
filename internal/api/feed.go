package api

import (
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/robfisher/mailshare/internal/search"
)

const feedTitle = "Search Mails"

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate,omitempty"`
	GUID        string `xml:"guid"`
	Author      string `xml:"author,omitempty"`
}

// handleSearchFeed serves the mails of a search as RSS 2.0. The query string
// is the search, as on /search/. Item descriptions list the mail's tags.
func (s *Server) handleSearchFeed(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	ctx := r.Context()
	srch := search.FromValues(r.URL.Query())

	ids, err := s.resultIDs(ctx, srch)
	if err != nil {
		s.logger.Error("feed search failed", "url", srch.URLPath(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Search failed")
		return
	}
	if limit := s.cfg.Server.ResultLimit; limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	mails, err := s.svc.Engine.Summaries(ctx, ids)
	if err != nil {
		s.logger.Error("failed to list feed mails", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve mails")
		return
	}

	base := requestBase(r)
	feed := rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:       feedTitle,
			Link:        base + srch.URLPath(),
			Description: "Updates on " + srch.URLPath(),
		},
	}
	for _, m := range mails {
		link := base + mailLink(m.ID, srch)
		names := make([]string, len(m.Tags))
		for i, t := range m.Tags {
			names[i] = t.Name
		}
		item := rssItem{
			Title:       m.Subject,
			Link:        link,
			Description: strings.Join(names, ", "),
			GUID:        link,
			Author:      m.SenderAddress,
		}
		if !m.Date.IsZero() {
			item.PubDate = m.Date.UTC().Format(time.RFC1123Z)
		}
		feed.Channel.Items = append(feed.Channel.Items, item)
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(feed); err != nil {
		s.logger.Warn("failed to write feed", "error", err)
	}
}

// requestBase is the scheme and host the request was addressed to.
func requestBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
