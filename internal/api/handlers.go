package api

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfisher/mailshare/internal/present"
	"github.com/robfisher/mailshare/internal/query"
	"github.com/robfisher/mailshare/internal/search"
	"github.com/robfisher/mailshare/internal/tagcloud"
)

// completeLimit caps tag completion results.
const completeLimit = 20

// StatsResponse represents the database statistics.
type StatsResponse struct {
	TotalMails    int64  `json:"total_mails"`
	TotalContacts int64  `json:"total_contacts"`
	TotalTags     int64  `json:"total_tags"`
	TotalTaggings int64  `json:"total_taggings"`
	DatabaseSize  int64  `json:"database_size_bytes"`
	Backend       string `json:"backend"`
}

// SearchResponse is a rendered search with its first results.
type SearchResponse struct {
	URL             string              `json:"url"`
	DescriptionHTML template.HTML       `json:"description_html"`
	HiddenFormHTML  template.HTML       `json:"hidden_form_html"`
	NextQueryField  string              `json:"next_query_field"`
	Total           int                 `json:"total"`
	Mails           []query.MailSummary `json:"mails"`
}

// MailResponse is a mail with its body and tags rendered for a search.
type MailResponse struct {
	*query.MailDetail
	BodyHTML template.HTML `json:"body_html"`
	TagsHTML template.HTML `json:"tags_html"`
}

// TagRequest names a tag to apply to a mail.
type TagRequest struct {
	Tag string `json:"tag"`
	URL string `json:"url"`
}

// TagEditResponse is returned after a mail's tags change.
type TagEditResponse struct {
	TagsHTML     template.HTML `json:"tags_html"`
	UndoHTML     template.HTML `json:"undo_html,omitempty"`
	TagCloudHTML template.HTML `json:"tag_cloud_html"`
}

// MultiBarRequest addresses a selection of mails.
type MultiBarRequest struct {
	MailIDs []int64 `json:"mail_ids"`
	Tag     string  `json:"tag,omitempty"`
	URL     string  `json:"url"`
}

// MultiBarResponse is the rendered multi-select bar.
type MultiBarResponse struct {
	HTML         template.HTML `json:"html"`
	TagCloudHTML template.HTML `json:"tag_cloud_html,omitempty"`
}

// TagCloudResponse is a cached team tag cloud.
type TagCloudResponse struct {
	Team        int64         `json:"team"`
	HTML        template.HTML `json:"html"`
	RefreshedAt string        `json:"refreshed_at,omitempty"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// pathID parses a numeric URL parameter, writing a 400 when it is not one.
func pathID(w http.ResponseWriter, r *http.Request, param, what string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", what+" ID must be a number")
		return 0, false
	}
	return id, true
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON")
		return false
	}
	return true
}

func (s *Server) available(w http.ResponseWriter) bool {
	if s.svc.Store == nil || s.svc.Engine == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return false
	}
	return true
}

// resultIDs executes srch against the configured backend.
func (s *Server) resultIDs(ctx context.Context, srch *search.Search) ([]int64, error) {
	return srch.Execute(s.svc.Data).IDs(ctx)
}

// resultCloud renders the tag cloud of the mails matching srch.
func (s *Server) resultCloud(ctx context.Context, srch *search.Search) (template.HTML, error) {
	ids, err := s.resultIDs(ctx, srch)
	if err != nil {
		return "", err
	}
	counts, err := s.svc.Engine.TagCounts(ctx, ids)
	if err != nil {
		return "", err
	}
	return present.TagCloud(counts, srch), nil
}

// mailTagsHTML renders the current tags of a mail for srch.
func (s *Server) mailTagsHTML(ctx context.Context, mailID int64, srch *search.Search) (template.HTML, error) {
	tags, err := s.svc.Engine.MailTags(ctx, mailID)
	if err != nil {
		return "", err
	}
	return present.MailTags(mailID, tags, srch), nil
}

// mailExists writes a 404 or 500 and returns false unless the mail exists.
func (s *Server) mailExists(w http.ResponseWriter, r *http.Request, id int64) (*query.MailDetail, bool) {
	mail, err := s.svc.Engine.GetMail(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get mail", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve mail")
		return nil, false
	}
	if mail == nil {
		writeError(w, http.StatusNotFound, "not_found", "Mail not found")
		return nil, false
	}
	return mail, true
}

// handleStats returns database statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	stats, err := s.svc.Store.GetStats()
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalMails:    stats.MailCount,
		TotalContacts: stats.ContactCount,
		TotalTags:     stats.TagCount,
		TotalTaggings: stats.TaggingCount,
		DatabaseSize:  stats.DatabaseSize,
		Backend:       s.cfg.Search.Backend,
	})
}

// handleSearch runs the search given by the query string. "limit" caps the
// returned mails and is not a search parameter.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	values := r.URL.Query()
	limit, _ := strconv.Atoi(values.Get("limit"))
	if limit <= 0 || limit > s.cfg.Server.ResultLimit {
		limit = s.cfg.Server.ResultLimit
	}
	values.Del("limit")
	srch := search.FromValues(values)

	ids, err := s.resultIDs(r.Context(), srch)
	if err != nil {
		s.logger.Error("search failed", "url", srch.URLPath(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Search failed")
		return
	}
	total := len(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	mails, err := s.svc.Engine.Summaries(r.Context(), ids)
	if err != nil {
		s.logger.Error("failed to list mails", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve mails")
		return
	}
	if mails == nil {
		mails = []query.MailSummary{}
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		URL:             srch.URLPath(),
		DescriptionHTML: srch.DescriptiveHTML(r.Context(), s.svc.Directory),
		HiddenFormHTML:  srch.HiddenFormHTML(),
		NextQueryField:  srch.NextFullTextFieldName(),
		Total:           total,
		Mails:           mails,
	})
}

// handleGetMail returns a mail. Tag links are built on the search in "url".
func (s *Server) handleGetMail(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	id, ok := pathID(w, r, "id", "Mail")
	if !ok {
		return
	}
	mail, ok := s.mailExists(w, r, id)
	if !ok {
		return
	}
	srch := search.FromURL(r.URL.Query().Get("url"))

	writeJSON(w, http.StatusOK, MailResponse{
		MailDetail: mail,
		BodyHTML:   present.PlainTextHTML(mail.Body),
		TagsHTML:   present.MailTags(mail.ID, mail.Tags, srch),
	})
}

// handleAddTag tags a mail, creating the tag if needed.
func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	id, ok := pathID(w, r, "id", "Mail")
	if !ok {
		return
	}
	var req TagRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Tag = strings.TrimSpace(req.Tag)
	if req.Tag == "" {
		writeError(w, http.StatusBadRequest, "missing_tag", "Tag name is required")
		return
	}
	if _, ok := s.mailExists(w, r, id); !ok {
		return
	}

	tag, err := s.svc.Store.GetOrCreateTag(req.Tag)
	if err == nil {
		err = s.svc.Store.AddTag(id, tag.ID)
	}
	if err != nil {
		s.logger.Error("failed to add tag", "mail", id, "tag", req.Tag, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to add tag")
		return
	}
	s.syncIndex(r.Context(), id)
	s.writeTagEdit(w, r, id, search.FromURL(req.URL), "")
}

// handleRemoveTag removes a tag from a mail and offers to undo it.
func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	id, ok := pathID(w, r, "id", "Mail")
	if !ok {
		return
	}
	tagID, ok := pathID(w, r, "tagID", "Tag")
	if !ok {
		return
	}
	if _, ok := s.mailExists(w, r, id); !ok {
		return
	}
	tag, err := s.svc.Store.GetTag(tagID)
	if err != nil {
		s.logger.Error("failed to get tag", "tag", tagID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve tag")
		return
	}
	if tag == nil {
		writeError(w, http.StatusNotFound, "not_found", "Tag not found")
		return
	}

	if _, err := s.svc.Store.RemoveTag(id, tagID); err != nil {
		s.logger.Error("failed to remove tag", "mail", id, "tag", tagID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to remove tag")
		return
	}
	s.syncIndex(r.Context(), id)
	undo := present.UndoDelete(id, search.TagInfo{ID: tag.ID, Name: tag.Name})
	s.writeTagEdit(w, r, id, search.FromURL(r.URL.Query().Get("url")), undo)
}

func (s *Server) writeTagEdit(w http.ResponseWriter, r *http.Request, id int64, srch *search.Search, undo template.HTML) {
	tagsHTML, err := s.mailTagsHTML(r.Context(), id, srch)
	if err != nil {
		s.logger.Error("failed to render mail tags", "mail", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to render tags")
		return
	}
	cloud, err := s.resultCloud(r.Context(), srch)
	if err != nil {
		s.logger.Error("failed to render tag cloud", "url", srch.URLPath(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to render tag cloud")
		return
	}
	writeJSON(w, http.StatusOK, TagEditResponse{TagsHTML: tagsHTML, UndoHTML: undo, TagCloudHTML: cloud})
}

// handleDeleteMail deletes a mail when enable_delete is set.
func (s *Server) handleDeleteMail(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.EnableDelete {
		writeError(w, http.StatusForbidden, "delete_disabled", "Deleting mail is disabled; set [server] enable_delete")
		return
	}
	if !s.available(w) {
		return
	}
	id, ok := pathID(w, r, "id", "Mail")
	if !ok {
		return
	}
	mail, ok := s.mailExists(w, r, id)
	if !ok {
		return
	}
	if _, err := s.svc.Store.DeleteMail(id); err != nil {
		s.logger.Error("failed to delete mail", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete mail")
		return
	}
	s.logger.Info("mail deleted", "id", id, "subject", mail.Subject, "remote_addr", r.RemoteAddr)
	s.syncIndex(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "deleted",
		"id":     id,
	})
}

// decodeSelection reads a MultiBarRequest that must select some mails.
func decodeSelection(w http.ResponseWriter, r *http.Request) (*MultiBarRequest, bool) {
	var req MultiBarRequest
	if !decodeBody(w, r, &req) {
		return nil, false
	}
	if len(req.MailIDs) == 0 {
		writeError(w, http.StatusBadRequest, "missing_mails", "mail_ids must not be empty")
		return nil, false
	}
	return &req, true
}

func (s *Server) writeMultiBar(w http.ResponseWriter, r *http.Request, req *MultiBarRequest, withCloud bool) {
	srch := search.FromURL(req.URL)
	counts, err := s.svc.Engine.TagCounts(r.Context(), req.MailIDs)
	if err != nil {
		s.logger.Error("failed to count selection tags", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to render selection")
		return
	}
	resp := MultiBarResponse{HTML: present.MultiBar(counts, len(req.MailIDs), srch)}
	if withCloud {
		if resp.TagCloudHTML, err = s.resultCloud(r.Context(), srch); err != nil {
			s.logger.Error("failed to render tag cloud", "url", srch.URLPath(), "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to render tag cloud")
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleMultiBar renders the bar for a selection.
func (s *Server) handleMultiBar(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	req, ok := decodeSelection(w, r)
	if !ok {
		return
	}
	s.writeMultiBar(w, r, req, false)
}

// handleMultiAddTag applies a tag to every selected mail.
func (s *Server) handleMultiAddTag(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	req, ok := decodeSelection(w, r)
	if !ok {
		return
	}
	req.Tag = strings.TrimSpace(req.Tag)
	if req.Tag == "" {
		writeError(w, http.StatusBadRequest, "missing_tag", "Tag name is required")
		return
	}
	tag, err := s.svc.Store.GetOrCreateTag(req.Tag)
	if err == nil {
		err = s.svc.Store.AddTagToMails(tag.ID, req.MailIDs)
	}
	if err != nil {
		s.logger.Error("failed to tag selection", "tag", req.Tag, "mails", len(req.MailIDs), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to add tag")
		return
	}
	s.syncIndex(r.Context(), req.MailIDs...)
	s.writeMultiBar(w, r, req, true)
}

// handleMultiRemoveTag removes a tag from every selected mail.
func (s *Server) handleMultiRemoveTag(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	tagID, ok := pathID(w, r, "tagID", "Tag")
	if !ok {
		return
	}
	req, ok := decodeSelection(w, r)
	if !ok {
		return
	}
	if err := s.svc.Store.RemoveTagFromMails(tagID, req.MailIDs); err != nil {
		s.logger.Error("failed to untag selection", "tag", tagID, "mails", len(req.MailIDs), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to remove tag")
		return
	}
	s.syncIndex(r.Context(), req.MailIDs...)
	s.writeMultiBar(w, r, req, true)
}

// handleCompleteTags returns tag names for autocompletion.
func (s *Server) handleCompleteTags(w http.ResponseWriter, r *http.Request) {
	if !s.available(w) {
		return
	}
	names := []string{}
	if text := strings.TrimSpace(r.URL.Query().Get("text")); text != "" {
		found, err := s.svc.Engine.CompleteTags(r.Context(), text, completeLimit)
		if err != nil {
			s.logger.Error("tag completion failed", "text", text, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to complete tags")
			return
		}
		names = append(names, found...)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tags": names})
}

func (s *Server) teams() []tagcloud.Team {
	if s.svc.Teams == nil {
		return []tagcloud.Team{}
	}
	return s.svc.Teams.Teams()
}

// handleListTeams returns the configured teams.
func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"teams": s.teams()})
}

// handleTagCloud returns the cached cloud of a team, 0 for all teams.
func (s *Server) handleTagCloud(w http.ResponseWriter, r *http.Request) {
	team, ok := pathID(w, r, "team", "Team")
	if !ok {
		return
	}
	if s.svc.Clouds == nil {
		writeError(w, http.StatusServiceUnavailable, "tagcloud_unavailable", "Tag clouds not available")
		return
	}
	html, err := s.svc.Clouds.Get(r.Context(), team)
	if err != nil {
		s.logger.Error("failed to get tag cloud", "team", team, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to build tag cloud")
		return
	}
	resp := TagCloudResponse{Team: team, HTML: html}
	if at, ok := s.svc.Clouds.RefreshedAt(team); ok {
		resp.RefreshedAt = at.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSchedulerStatus returns the scheduler status.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	resp := SchedulerStatusResponse{Jobs: []JobStatus{}}
	if s.svc.Scheduler != nil {
		resp.Running = s.svc.Scheduler.IsRunning()
		resp.Jobs = append(resp.Jobs, s.svc.Scheduler.Status()...)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTriggerJob runs a scheduled job now.
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.svc.Scheduler == nil || !s.svc.Scheduler.IsScheduled(name) {
		writeError(w, http.StatusNotFound, "not_found", "No scheduled job named "+name)
		return
	}

	if err := s.svc.Scheduler.TriggerJob(name); err != nil {
		s.logger.Error("failed to trigger job", "job", name, "error", err)
		writeError(w, http.StatusConflict, "job_error", err.Error())
		return
	}

	s.logger.Info("job triggered via API", "job", name)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Job " + name + " started",
	})
}
