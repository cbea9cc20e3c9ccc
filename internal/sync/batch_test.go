package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"calendar-mirror/internal/models"
	"calendar-mirror/internal/storage"
)

func TestBatchRun_IsolatesPerUserFailures(t *testing.T) {
	st := newFakeStore()
	st.addUser("u1", models.SyncModeFull)
	st.addUser("u2", models.SyncModeFull)
	st.addUser("u3", models.SyncModeFull)
	// u2 has no linked account: their sync fails, the rest proceed
	delete(st.accounts, "u2")
	st.pending = []string{"u1", "u2", "u3"}

	st.events = []models.Event{makeEvent("a", time.Now().UTC())}

	api := newFakeAPI()
	orch := newTestOrchestrator(st, api)
	driver := NewBatchDriver(testLogger(), st, orch, 25, nil)

	res, err := driver.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if res.Processed != 3 {
		t.Errorf("expected 3 processed, got %d", res.Processed)
	}
	if res.Synced != 2 {
		t.Errorf("expected 2 synced, got %d", res.Synced)
	}
	if len(res.Errors) != 1 || res.Errors[0].UserID != "u2" {
		t.Errorf("expected exactly one error for u2, got %v", res.Errors)
	}

	if st.states["u1"].SyncStatus != models.SyncStatusSynced {
		t.Errorf("expected u1 synced, got %s", st.states["u1"].SyncStatus)
	}
	if st.states["u3"].SyncStatus != models.SyncStatusSynced {
		t.Errorf("expected u3 synced, got %s", st.states["u3"].SyncStatus)
	}
}

func TestBatchRun_RespectsBatchSize(t *testing.T) {
	st := newFakeStore()
	for _, u := range []string{"u1", "u2", "u3", "u4"} {
		st.addUser(u, models.SyncModeFull)
	}
	st.pending = []string{"u1", "u2", "u3", "u4"}

	api := newFakeAPI()
	orch := newTestOrchestrator(st, api)
	driver := NewBatchDriver(testLogger(), st, orch, 2, nil)

	res, err := driver.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Processed != 2 {
		t.Errorf("expected batch limited to 2 users, got %d", res.Processed)
	}
}

func TestBatchRun_ArchivesReport(t *testing.T) {
	st := newFakeStore()
	st.addUser("u1", models.SyncModeFull)
	st.pending = []string{"u1"}

	api := newFakeAPI()
	orch := newTestOrchestrator(st, api)
	sim := storage.NewSimulator(testLogger())
	driver := NewBatchDriver(testLogger(), st, orch, 25, sim)

	res, err := driver.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	body, ok := sim.Report(res.RunID)
	if !ok {
		t.Fatal("expected report archived under run id")
	}

	var archived BatchResult
	if err := json.Unmarshal(body, &archived); err != nil {
		t.Fatalf("report is not valid json: %v", err)
	}
	if archived.Processed != res.Processed || archived.Synced != res.Synced {
		t.Errorf("archived report disagrees with result: %+v vs %+v", archived, res)
	}
}
