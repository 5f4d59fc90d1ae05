package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/robfisher/mailshare/internal/config"
	"github.com/robfisher/mailshare/internal/search"
	"github.com/robfisher/mailshare/internal/testutil"
)

func enableDelete(cfg *config.Config) { cfg.Server.EnableDelete = true }

func TestHandleStats(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp StatsResponse
	decode(t, w, &resp)
	want := StatsResponse{TotalMails: 4, TotalContacts: 4, TotalTags: 3, TotalTaggings: 4, Backend: "sqlite"}
	resp.DatabaseSize = 0
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", fmt.Sprintf("/api/v1/search?sender=%d", env.seed.Alice), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp SearchResponse
	decode(t, w, &resp)
	if want := fmt.Sprintf("/search/?sender=%d", env.seed.Alice); resp.URL != want {
		t.Errorf("url = %q, want %q", resp.URL, want)
	}
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}
	var ids []int64
	for _, m := range resp.Mails {
		ids = append(ids, m.ID)
	}
	testutil.AssertIDs(t, ids, env.seed.Mails[3], env.seed.Mails[0])
	if resp.NextQueryField != "query-1" {
		t.Errorf("next_query_field = %q, want query-1", resp.NextQueryField)
	}
	testutil.AssertContainsAll(t, string(resp.DescriptionHTML), "Alice")
	testutil.AssertContainsAll(t, string(resp.HiddenFormHTML), `name="sender"`)
}

func TestHandleSearchLimit(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", fmt.Sprintf("/api/v1/search?tag_id=%d&limit=1", env.seed.Budget), "")
	var resp SearchResponse
	decode(t, w, &resp)
	if resp.Total != 2 || len(resp.Mails) != 1 {
		t.Errorf("total = %d, mails = %d, want 2 and 1", resp.Total, len(resp.Mails))
	}
	if strings.Contains(resp.URL, "limit") {
		t.Errorf("url %q should not carry limit", resp.URL)
	}
}

func TestHandleSearchEmptyMatchesAll(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/search?bogus=1&tag_id=abc", "")
	var resp SearchResponse
	decode(t, w, &resp)
	if resp.URL != search.URLPrefix {
		t.Errorf("url = %q, want %q", resp.URL, search.URLPrefix)
	}
	if resp.Total != 4 {
		t.Errorf("total = %d, want 4", resp.Total)
	}
}

func TestHandleGetMail(t *testing.T) {
	env := newTestEnv(t)
	from := fmt.Sprintf("/search/?sender=%d", env.seed.Bob)

	w := env.do(t, "GET", fmt.Sprintf("/api/v1/mails/%d?url=%s", env.seed.Mails[1], url.QueryEscape(from)), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		ID       int64  `json:"id"`
		Subject  string `json:"subject"`
		Body     string `json:"body"`
		BodyHTML string `json:"body_html"`
		TagsHTML string `json:"tags_html"`
	}
	decode(t, w, &resp)
	if resp.ID != env.seed.Mails[1] || resp.Subject != "lunch" {
		t.Errorf("mail = %d %q", resp.ID, resp.Subject)
	}
	if resp.BodyHTML == "" {
		t.Error("expected body_html")
	}
	links := testutil.Links(t, resp.TagsHTML)
	want := fmt.Sprintf("/search/?sender=%d&tag_id-1=%d", env.seed.Bob, env.seed.Lunch)
	if links["lunch"] != want {
		t.Errorf("lunch link = %q, want %q", links["lunch"], want)
	}
}

func TestHandleGetMailErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path       string
		wantStatus int
		wantCode   string
	}{
		{"/api/v1/mails/99999", http.StatusNotFound, "not_found"},
		{"/api/v1/mails/abc", http.StatusBadRequest, "invalid_id"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.do(t, "GET", tt.path, "")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			decode(t, w, &resp)
			if resp.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestHandleAddTag(t *testing.T) {
	env := newTestEnv(t)
	mail := env.seed.Mails[2]
	from := fmt.Sprintf("/search/?sender=%d", env.seed.Carol)

	w := env.do(t, "POST", fmt.Sprintf("/api/v1/mails/%d/tags", mail),
		fmt.Sprintf(`{"tag":" release ","url":%q}`, from))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp TagEditResponse
	decode(t, w, &resp)
	testutil.AssertContainsAll(t, string(resp.TagsHTML), ">release</a>")
	testutil.AssertContainsAll(t, string(resp.TagCloudHTML), ">release</a>")
	if resp.UndoHTML != "" {
		t.Errorf("unexpected undo_html %q", resp.UndoHTML)
	}
	testutil.AssertIDs(t, env.index.synced, mail)

	tags, err := env.srv.svc.Engine.MailTags(t.Context(), mail)
	testutil.MustNoErr(t, err, "MailTags")
	if len(tags) != 1 || tags[0].Name != "release" {
		t.Errorf("tags = %+v, want [release]", tags)
	}
}

func TestHandleAddTagErrors(t *testing.T) {
	env := newTestEnv(t)
	mail := env.seed.Mails[0]

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"empty tag", fmt.Sprintf("/api/v1/mails/%d/tags", mail), `{"tag":"  "}`, http.StatusBadRequest, "missing_tag"},
		{"bad json", fmt.Sprintf("/api/v1/mails/%d/tags", mail), `{tag`, http.StatusBadRequest, "invalid_body"},
		{"missing mail", "/api/v1/mails/99999/tags", `{"tag":"x"}`, http.StatusNotFound, "not_found"},
		{"invalid id", "/api/v1/mails/x/tags", `{"tag":"x"}`, http.StatusBadRequest, "invalid_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			decode(t, w, &resp)
			if resp.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantCode)
			}
		})
	}
	if len(env.index.synced) != 0 {
		t.Errorf("synced = %v, want none", env.index.synced)
	}
}

func TestHandleRemoveTag(t *testing.T) {
	env := newTestEnv(t)
	mail := env.seed.Mails[1]

	w := env.do(t, "DELETE", fmt.Sprintf("/api/v1/mails/%d/tags/%d?url=%s", mail, env.seed.Lunch,
		url.QueryEscape(search.URLPrefix)), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp TagEditResponse
	decode(t, w, &resp)
	testutil.AssertContainsAll(t, string(resp.TagsHTML), ">budget</a>")
	testutil.AssertContainsNone(t, string(resp.TagsHTML), ">lunch</a>")
	testutil.AssertContainsAll(t, string(resp.UndoHTML), "lunch", "add_tag_to_email(")
	testutil.AssertContainsNone(t, string(resp.TagCloudHTML), ">lunch</a>")
	testutil.AssertIDs(t, env.index.synced, mail)
}

func TestHandleRemoveTagUnknownTag(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "DELETE", fmt.Sprintf("/api/v1/mails/%d/tags/99999", env.seed.Mails[1]), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestIndexSyncFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.index.err = errors.New("index unavailable")

	w := env.do(t, "POST", fmt.Sprintf("/api/v1/mails/%d/tags", env.seed.Mails[0]), `{"tag":"ops"}`)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestHandleDeleteMailDisabled(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "DELETE", fmt.Sprintf("/api/v1/mails/%d", env.seed.Mails[0]), "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	var resp ErrorResponse
	decode(t, w, &resp)
	if resp.Error != "delete_disabled" {
		t.Errorf("error = %q, want delete_disabled", resp.Error)
	}
}

func TestHandleDeleteMail(t *testing.T) {
	env := newTestEnv(t, enableDelete)
	mail := env.seed.Mails[0]

	w := env.do(t, "DELETE", fmt.Sprintf("/api/v1/mails/%d", mail), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	testutil.AssertIDs(t, env.index.synced, mail)

	if w := env.do(t, "GET", fmt.Sprintf("/api/v1/mails/%d", mail), ""); w.Code != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := env.do(t, "DELETE", fmt.Sprintf("/api/v1/mails/%d", mail), ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleMultiBar(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/multibar",
		fmt.Sprintf(`{"mail_ids":[%d,%d],"url":"/search/"}`, env.seed.Mails[0], env.seed.Mails[1]))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp MultiBarResponse
	decode(t, w, &resp)
	testutil.AssertContainsAll(t, string(resp.HTML), "2 selected", "budget</a> (2/2)", "lunch</a> (1/2)")
	if resp.TagCloudHTML != "" {
		t.Errorf("unexpected tag_cloud_html %q", resp.TagCloudHTML)
	}
}

func TestHandleMultiBarRequiresSelection(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/v1/multibar", "/api/v1/multibar/tags"} {
		w := env.do(t, "POST", path, `{"mail_ids":[],"tag":"x"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("POST %s status = %d, want %d", path, w.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleMultiAddTag(t *testing.T) {
	env := newTestEnv(t)
	m0, m2 := env.seed.Mails[0], env.seed.Mails[2]

	w := env.do(t, "POST", "/api/v1/multibar/tags",
		fmt.Sprintf(`{"mail_ids":[%d,%d],"tag":"q1","url":"/search/"}`, m0, m2))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp MultiBarResponse
	decode(t, w, &resp)
	testutil.AssertContainsAll(t, string(resp.HTML), "q1</a> (2/2)", "budget</a> (1/2)")
	testutil.AssertContainsAll(t, string(resp.TagCloudHTML), ">q1</a>")
	testutil.AssertIDs(t, env.index.synced, m0, m2)
}

func TestHandleMultiRemoveTag(t *testing.T) {
	env := newTestEnv(t)
	m0, m1 := env.seed.Mails[0], env.seed.Mails[1]

	w := env.do(t, "DELETE", fmt.Sprintf("/api/v1/multibar/tags/%d", env.seed.Budget),
		fmt.Sprintf(`{"mail_ids":[%d,%d],"url":"/search/"}`, m0, m1))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp MultiBarResponse
	decode(t, w, &resp)
	testutil.AssertContainsNone(t, string(resp.HTML), "budget")
	testutil.AssertContainsAll(t, string(resp.HTML), "lunch</a> (1/2)")
	testutil.AssertContainsNone(t, string(resp.TagCloudHTML), ">budget</a>")
}

func TestHandleCompleteTags(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		text string
		want []string
	}{
		{"b", []string{"budget"}},
		{"u", []string{}},
		{"un", []string{"lunch"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			w := env.do(t, "GET", "/api/v1/tags/complete?text="+url.QueryEscape(tt.text), "")
			var resp struct {
				Tags []string `json:"tags"`
			}
			decode(t, w, &resp)
			if diff := cmp.Diff(tt.want, resp.Tags); diff != "" {
				t.Errorf("tags mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHandleListTeams(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/teams", "")
	var resp struct {
		Teams []struct {
			Name      string `json:"name"`
			ContactID int64  `json:"contact_id"`
		} `json:"teams"`
	}
	decode(t, w, &resp)
	if len(resp.Teams) != 1 || resp.Teams[0].Name != "Team" || resp.Teams[0].ContactID != env.seed.Team {
		t.Errorf("teams = %+v", resp.Teams)
	}
}

func TestHandleTagCloud(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/tagcloud/0", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp TagCloudResponse
	decode(t, w, &resp)
	if resp.Team != 0 || !strings.Contains(string(resp.HTML), "all") {
		t.Errorf("cloud = %+v", resp)
	}
	if resp.RefreshedAt != "2026-03-10T08:00:00Z" {
		t.Errorf("refreshed_at = %q", resp.RefreshedAt)
	}

	if w := env.do(t, "GET", "/api/v1/tagcloud/team", ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid team status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestErrorResponseShape(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/mails/99999", "")
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var raw map[string]interface{}
	decode(t, w, &raw)
	for _, key := range []string{"error", "message"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing %q in error response", key)
		}
	}
}
