package queue

import (
	"encoding/json"
	"testing"

	"fathom/internal/model"
)

func TestJobKey(t *testing.T) {
	if got := jobKey("abc"); got != "deep_scrape_job:abc" {
		t.Fatalf("jobKey = %q", got)
	}
}

func TestLockKeyCanonicalizes(t *testing.T) {
	a := LockKey("https://Site.COM/x/?utm_source=g#frag")
	b := LockKey("https://site.com/x")
	if a != b {
		t.Fatalf("lock keys differ for equivalent urls: %q vs %q", a, b)
	}
	if a != "lock:https://site.com/x" {
		t.Fatalf("lock key = %q", a)
	}
}

func TestJobRecordRoundTrip(t *testing.T) {
	rec := model.JobRecord{
		JobID:     "j1",
		Status:    model.StatusRunning,
		CreatedAt: 1700000000.25,
		UpdatedAt: 1700000001.5,
		Params: model.CrawlParams{
			URL:             "https://a.example/",
			Depth:           3,
			MaxURLsPerLevel: 10,
			SameDomainOnly:  true,
			Delay:           1.0,
			Cache:           true,
		},
		Progress: &model.Progress{CurrentLevel: 1, Percent: 33.3, LastURL: "https://a.example/p"},
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back model.JobRecord
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.JobID != rec.JobID || back.Status != rec.Status || back.CreatedAt != rec.CreatedAt {
		t.Fatalf("record fields changed: %+v", back)
	}
	if back.Progress == nil || back.Progress.Percent != 33.3 {
		t.Fatalf("progress lost: %+v", back.Progress)
	}
	if back.Params.URL != rec.Params.URL || back.Params.Depth != 3 {
		t.Fatalf("params lost: %+v", back.Params)
	}
}

func TestProgressMessageWireFormat(t *testing.T) {
	raw, err := json.Marshal(ProgressMessage{
		JobID:    "j2",
		Progress: model.Progress{Percent: 100, Status: "done"},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["job_id"]; !ok {
		t.Fatalf("missing job_id field: %s", raw)
	}
	if _, ok := m["progress"]; !ok {
		t.Fatalf("missing progress field: %s", raw)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []model.JobStatus{model.StatusDone, model.StatusError, model.StatusSkipped} {
		if !s.Terminal() {
			t.Fatalf("%s not terminal", s)
		}
	}
	for _, s := range []model.JobStatus{model.StatusPending, model.StatusRunning} {
		if s.Terminal() {
			t.Fatalf("%s reported terminal", s)
		}
	}
}
