package services

import (
	"context"
	"encoding/json"
	"testing"

	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
)

func TestJobCacheHitAndMiss(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "cached", false)

	job, err := h.svcs.Jobs.Create(context.Background(), CreateJobInput{
		WorkflowID:  wf.ID,
		Name:        "gendata",
		DockerImage: "docker.io/sciflow/fitter:1.0",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Status != types.JobStatusCreated {
		t.Fatalf("new job status = %q, want created", job.Status)
	}

	entry, err := h.svcs.Jobs.CacheResult(context.Background(), CacheJobResultInput{
		JobID:         job.ID,
		WorkspaceHash: "sha256:abcd",
		Parameters:    `{"events": 1000}`,
		ResultPath:    "results/data.root",
	})
	if err != nil {
		t.Fatalf("cache result: %v", err)
	}

	hit, err := h.svcs.Jobs.CachedResult(context.Background(), "sha256:abcd", `{"events": 1000}`)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if hit == nil || hit.ID != entry.ID {
		t.Fatalf("lookup returned %+v, want entry %s", hit, entry.ID)
	}
	if hit.ResultPath != "results/data.root" {
		t.Fatalf("result path = %q", hit.ResultPath)
	}

	miss, err := h.svcs.Jobs.CachedResult(context.Background(), "sha256:abcd", `{"events": 500}`)
	if err != nil {
		t.Fatalf("lookup with differing parameters: %v", err)
	}
	if miss != nil {
		t.Fatal("differing parameters should miss the cache")
	}
}

func TestJobCacheRecordsAccessTimes(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "cached", false)

	job, err := h.svcs.Jobs.Create(context.Background(), CreateJobInput{WorkflowID: wf.ID, Name: "step"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := h.svcs.Jobs.CacheResult(context.Background(), CacheJobResultInput{
		JobID:         job.ID,
		WorkspaceHash: "sha256:feed",
	}); err != nil {
		t.Fatalf("cache result: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := h.svcs.Jobs.CachedResult(context.Background(), "sha256:feed", ""); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}

	hit, err := h.svcs.Jobs.CachedResult(context.Background(), "sha256:feed", "")
	if err != nil {
		t.Fatalf("final lookup: %v", err)
	}
	var accesses []string
	if err := json.Unmarshal(hit.AccessTimes, &accesses); err != nil {
		t.Fatalf("decode access times %s: %v", hit.AccessTimes, err)
	}
	if len(accesses) != 2 {
		t.Fatalf("recorded %d accesses before the final lookup, want 2", len(accesses))
	}
}

func TestJobCachePruneByWorkflow(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "pruned", false)

	job, err := h.svcs.Jobs.Create(context.Background(), CreateJobInput{WorkflowID: wf.ID, Name: "step"})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := h.svcs.Jobs.CacheResult(context.Background(), CacheJobResultInput{
		JobID:         job.ID,
		WorkspaceHash: "sha256:gone",
	}); err != nil {
		t.Fatalf("cache result: %v", err)
	}

	if err := h.svcs.Jobs.PruneCache(context.Background(), wf.ID); err != nil {
		t.Fatalf("prune: %v", err)
	}
	hit, err := h.svcs.Jobs.CachedResult(context.Background(), "sha256:gone", "")
	if err != nil {
		t.Fatalf("lookup after prune: %v", err)
	}
	if hit != nil {
		t.Fatal("cache entry survived prune")
	}
}

func TestOpenSessionSeedsDiskQuotaRow(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "notebook-host", false)

	session, err := h.svcs.Sessions.Open(context.Background(), OpenSessionInput{
		OwnerID:    h.user.ID,
		Name:       "notebook",
		Path:       "/sessions/notebook",
		WorkflowID: &wf.ID,
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	if session.Type != types.InteractiveSessionTypeJupyter {
		t.Fatalf("default session type = %q", session.Type)
	}

	rows, err := h.repos.SessionResource.ListBySession(dbctx.New(context.Background()), session.ID)
	if err != nil {
		t.Fatalf("list session resources: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("seeded %d session resource rows, want 1", len(rows))
	}
	if rows[0].QuotaUsed != 0 {
		t.Fatalf("seeded usage = %d, want 0", rows[0].QuotaUsed)
	}
	if rows[0].ResourceID != h.resourceID(t, types.ResourceKindDisk) {
		t.Fatal("seeded row does not reference the default disk resource")
	}

	linked, err := h.repos.Session.GetByWorkflow(dbctx.New(context.Background()), wf.ID)
	if err != nil {
		t.Fatalf("get by workflow: %v", err)
	}
	if len(linked) != 1 || linked[0].ID != session.ID {
		t.Fatal("session not linked to its workflow")
	}
}
