package daemon

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"strata/internal/api"
	"strata/internal/catalog"
	"strata/internal/config"
	"strata/internal/logging"
	"strata/internal/objectstore"
	"strata/internal/testsupport"
	"strata/internal/workflow"
)

type serverFixture struct {
	t      *testing.T
	cfg    *config.Config
	daemon *Daemon
	srv    *httptest.Server
}

func newServerFixture(t *testing.T, opts ...testsupport.ConfigOption) *serverFixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	payloads, err := objectstore.NewFS(cfg.Paths.SpoolDir)
	if err != nil {
		t.Fatalf("objectstore.NewFS: %v", err)
	}
	engine := workflow.NewEngineWithBackends(cfg, store, catalog.NewMemory(cfg.Catalog.PageSize), payloads, nil, logging.NewNop())
	d, err := New(cfg, store, logging.NewNop(), engine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(d.api.server.Handler)
	t.Cleanup(srv.Close)
	return &serverFixture{t: t, cfg: cfg, daemon: d, srv: srv}
}

// do issues a request. A string body is sent raw; any other non-nil body is
// JSON encoded.
func (f *serverFixture) do(method, path, user, token string, body any) (int, []byte) {
	f.t.Helper()

	var reader io.Reader
	switch value := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(value)
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			f.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	if err != nil {
		f.t.Fatalf("build request: %v", err)
	}
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.srv.Client().Do(req)
	if err != nil {
		f.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		f.t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, data
}

func (f *serverFixture) decode(data []byte, out any) {
	f.t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		f.t.Fatalf("decode response %s: %v", data, err)
	}
}

func (f *serverFixture) errorMessage(data []byte) string {
	f.t.Helper()
	var resp api.ErrorResponse
	f.decode(data, &resp)
	return resp.Error
}

func (f *serverFixture) createJob(user string, granules int) api.Job {
	f.t.Helper()
	urls := make([]string, 0, granules)
	for i := 0; i < granules; i++ {
		urls = append(urls, "s3://inputs/g"+string(rune('a'+i))+".nc")
	}
	payload := api.CreateJobRequest{
		Source: api.JobSource{Granules: urls},
		Stages: []api.JobStage{{ServiceID: "svc/reproject:1"}},
	}
	code, body := f.do(http.MethodPost, "/jobs", user, "", payload)
	if code != http.StatusCreated {
		f.t.Fatalf("create job = %d: %s", code, body)
	}
	var job api.Job
	f.decode(body, &job)
	return job
}

func (f *serverFixture) claim(service, token string) api.ClaimedWork {
	f.t.Helper()
	code, body := f.do(http.MethodGet, "/work?serviceID="+service, "", token, nil)
	if code != http.StatusOK {
		f.t.Fatalf("claim = %d: %s", code, body)
	}
	var work api.ClaimedWork
	f.decode(body, &work)
	return work
}

func TestJobRoutes(t *testing.T) {
	fix := newServerFixture(t)

	created := fix.createJob("bob", 3)
	if created.Status != "accepted" || created.NumInputGranules != 3 || created.JobID == "" {
		t.Fatalf("created job = %+v", created)
	}

	if code, _ := fix.do(http.MethodPost, "/jobs", "", "", api.CreateJobRequest{}); code != http.StatusUnauthorized {
		t.Fatalf("anonymous create = %d, want 401", code)
	}

	code, body := fix.do(http.MethodGet, "/jobs", "bob", "", nil)
	if code != http.StatusOK {
		t.Fatalf("list jobs = %d: %s", code, body)
	}
	var list api.JobList
	fix.decode(body, &list)
	if list.Count != 1 || len(list.Jobs) != 1 || list.Jobs[0].JobID != created.JobID {
		t.Fatalf("list = %+v", list)
	}

	code, body = fix.do(http.MethodGet, "/jobs/"+created.JobID, "bob", "", nil)
	if code != http.StatusOK {
		t.Fatalf("get job = %d: %s", code, body)
	}
	var detail api.JobDetail
	fix.decode(body, &detail)
	if detail.JobID != created.JobID || detail.LinkCount != 0 {
		t.Fatalf("detail = %+v", detail)
	}

	code, body = fix.do(http.MethodGet, "/jobs/"+created.JobID, "carol", "", nil)
	if code != http.StatusNotFound {
		t.Fatalf("foreign get = %d, want 404", code)
	}
	if msg := fix.errorMessage(body); !strings.Contains(msg, "Unable to find job") {
		t.Fatalf("foreign get message = %q", msg)
	}

	code, body = fix.do(http.MethodGet, "/jobs/not-a-uuid", "bob", "", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad id = %d, want 400", code)
	}
	if msg := fix.errorMessage(body); !strings.Contains(msg, "must be a UUID") {
		t.Fatalf("bad id message = %q", msg)
	}
}

func TestListJobsPaginationLinks(t *testing.T) {
	fix := newServerFixture(t)
	for i := 0; i < 5; i++ {
		fix.createJob("bob", 1)
	}

	seen := make(map[string]bool)
	path := "/jobs?status=accepted&limit=2"
	pages := 0
	for path != "" {
		code, body := fix.do(http.MethodGet, path, "bob", "", nil)
		if code != http.StatusOK {
			t.Fatalf("list %s = %d: %s", path, code, body)
		}
		var list api.JobList
		fix.decode(body, &list)
		if list.Count != 5 {
			t.Fatalf("count on %s = %d, want 5", path, list.Count)
		}
		for _, job := range list.Jobs {
			if seen[job.JobID] {
				t.Fatalf("job %s appeared on two pages", job.JobID)
			}
			seen[job.JobID] = true
		}

		links := list.Pagination
		if links.Self == "" || !strings.Contains(links.Self, "status=accepted") {
			t.Fatalf("self link = %q, want the filter preserved", links.Self)
		}
		if pages == 0 && links.Prev != "" {
			t.Fatalf("first page has prev link %q", links.Prev)
		}
		if pages > 0 && links.Prev == "" {
			t.Fatal("later pages must link back")
		}
		if links.Next != "" && !strings.Contains(links.Next, "status=accepted") {
			t.Fatalf("next link = %q, want the filter preserved", links.Next)
		}
		path = links.Next
		pages++
	}

	if pages != 3 || len(seen) != 5 {
		t.Fatalf("walked %d pages over %d jobs, want 3 pages covering all 5", pages, len(seen))
	}
}

func TestWorkRoutesDriveJobToCompletion(t *testing.T) {
	fix := newServerFixture(t)
	created := fix.createJob("bob", 2)

	code, body := fix.do(http.MethodGet, "/work/count?serviceID=svc/reproject:1", "", "", nil)
	if code != http.StatusOK {
		t.Fatalf("count = %d: %s", code, body)
	}
	var count api.CountResponse
	fix.decode(body, &count)
	if count.Count != 2 {
		t.Fatalf("ready count = %d, want 2", count.Count)
	}

	for i := 0; i < 2; i++ {
		work := fix.claim("svc/reproject:1", "")
		if work.JobID != created.JobID || work.ItemID == 0 {
			t.Fatalf("claim %d = %+v", i, work)
		}
		var doc map[string]any
		if err := json.Unmarshal(work.Operation, &doc); err != nil {
			t.Fatalf("operation: %v", err)
		}
		if doc["requestID"] != created.JobID {
			t.Fatalf("operation requestID = %v", doc["requestID"])
		}

		report := api.WorkReport{Status: "successful", Results: []string{"s3://outputs/out" + string(rune('a'+i)) + ".nc"}}
		code, body = fix.do(http.MethodPut, "/work/"+itoa(work.ItemID), "", "", report)
		if code != http.StatusNoContent {
			t.Fatalf("report = %d: %s", code, body)
		}
	}

	if code, _ := fix.do(http.MethodGet, "/work?serviceID=svc/reproject:1", "", "", nil); code != http.StatusNotFound {
		t.Fatalf("drained claim = %d, want 404", code)
	}

	code, body = fix.do(http.MethodGet, "/jobs/"+created.JobID, "bob", "", nil)
	if code != http.StatusOK {
		t.Fatalf("get job = %d: %s", code, body)
	}
	var detail api.JobDetail
	fix.decode(body, &detail)
	if detail.Status != "successful" || detail.Progress != 100 {
		t.Fatalf("final job = %+v", detail)
	}
	if detail.LinkCount != 2 || len(detail.Links) != 2 || detail.Links[0].Rel != "data" {
		t.Fatalf("final links = %+v", detail)
	}

	code, body = fix.do(http.MethodGet, "/jobs/"+created.JobID+"/work-items?status=successful", "bob", "", nil)
	if code != http.StatusOK {
		t.Fatalf("work items = %d: %s", code, body)
	}
	var items api.WorkItemList
	fix.decode(body, &items)
	if items.Count != 2 || len(items.Items) != 2 {
		t.Fatalf("work items = %+v", items)
	}
}

func TestWorkerTokenAuth(t *testing.T) {
	fix := newServerFixture(t, testsupport.WithAPIToken("sekret"))
	fix.createJob("bob", 1)

	if code, _ := fix.do(http.MethodGet, "/work?serviceID=svc/reproject:1", "", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("claim without token = %d, want 401", code)
	}
	if code, _ := fix.do(http.MethodGet, "/work?serviceID=svc/reproject:1", "", "wrong", nil); code != http.StatusUnauthorized {
		t.Fatalf("claim with wrong token = %d, want 401", code)
	}
	work := fix.claim("svc/reproject:1", "sekret")
	if work.ItemID == 0 {
		t.Fatalf("claim = %+v", work)
	}

	// Job routes are scoped by user, not worker token.
	if code, _ := fix.do(http.MethodGet, "/jobs", "bob", "", nil); code != http.StatusOK {
		t.Fatalf("user route with token configured should not require it")
	}
}

func TestControlRoutes(t *testing.T) {
	fix := newServerFixture(t)
	created := fix.createJob("bob", 2)

	// First claim moves the job to running so pause becomes legal.
	fix.claim("svc/reproject:1", "")

	code, body := fix.do(http.MethodPost, "/jobs/"+created.JobID+"/pause", "bob", "", nil)
	if code != http.StatusOK {
		t.Fatalf("pause = %d: %s", code, body)
	}
	var paused api.Job
	fix.decode(body, &paused)
	if paused.Status != "paused" || !strings.Contains(paused.Message, "Resume") {
		t.Fatalf("paused job = %+v", paused)
	}

	code, body = fix.do(http.MethodPost, "/jobs/"+created.JobID+"/pause", "bob", "", nil)
	if code != http.StatusConflict {
		t.Fatalf("double pause = %d, want 409", code)
	}
	if msg := fix.errorMessage(body); msg != "Job status cannot be updated from paused to paused." {
		t.Fatalf("double pause message = %q", msg)
	}

	code, body = fix.do(http.MethodPost, "/jobs/"+created.JobID+"/resume", "bob", "", nil)
	if code != http.StatusOK {
		t.Fatalf("resume = %d: %s", code, body)
	}
	var resumed api.Job
	fix.decode(body, &resumed)
	if resumed.Status != "running" || resumed.Message != "" {
		t.Fatalf("resumed job = %+v", resumed)
	}

	code, body = fix.do(http.MethodPost, "/jobs/"+created.JobID+"/cancel", "bob", "", nil)
	if code != http.StatusOK {
		t.Fatalf("cancel = %d: %s", code, body)
	}
	var canceled api.Job
	fix.decode(body, &canceled)
	if canceled.Status != "canceled" || canceled.Message != "Canceled by user." {
		t.Fatalf("canceled job = %+v", canceled)
	}

	if code, _ = fix.do(http.MethodPost, "/jobs/"+created.JobID+"/resume", "bob", "", nil); code != http.StatusConflict {
		t.Fatalf("resume after cancel = %d, want 409", code)
	}
}

func TestRequestValidation(t *testing.T) {
	fix := newServerFixture(t)

	if code, _ := fix.do(http.MethodPost, "/jobs", "bob", "", `{"source":{`); code != http.StatusBadRequest {
		t.Fatalf("malformed create = %d, want 400", code)
	}

	code, body := fix.do(http.MethodPut, "/work/abc", "", "", api.WorkReport{Status: "successful"})
	if code != http.StatusBadRequest {
		t.Fatalf("bad item id = %d: %s", code, body)
	}

	code, body = fix.do(http.MethodPut, "/work/424242", "", "", api.WorkReport{Status: "successful"})
	if code != http.StatusNotFound {
		t.Fatalf("unknown item = %d, want 404", code)
	}
	if msg := fix.errorMessage(body); msg != "Unable to find work item 424242" {
		t.Fatalf("unknown item message = %q", msg)
	}

	code, body = fix.do(http.MethodGet, "/jobs?createdSince=tuesday", "bob", "", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad filter = %d: %s", code, body)
	}
	if msg := fix.errorMessage(body); !strings.Contains(msg, "RFC3339") {
		t.Fatalf("bad filter message = %q", msg)
	}

	code, body = fix.do(http.MethodGet, "/work", "", "", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("claim without service = %d: %s", code, body)
	}
	if msg := fix.errorMessage(body); msg != "serviceID is required" {
		t.Fatalf("claim without service message = %q", msg)
	}

	fix.createJob("bob", 1)
	work := fix.claim("svc/reproject:1", "")
	code, body = fix.do(http.MethodPut, "/work/"+itoa(work.ItemID), "", "", api.WorkReport{Status: "paused"})
	if code != http.StatusBadRequest {
		t.Fatalf("bad report status = %d: %s", code, body)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
