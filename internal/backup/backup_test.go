package backup

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/lutece_agenda/internal/models"
	"github.com/friendsincode/lutece_agenda/internal/storage"
)

type fakeSchedule struct {
	entries  []models.FeatureSchedule
	restored []models.FeatureSchedule
	actor    string
}

func (f *fakeSchedule) Snapshot(_ context.Context) ([]models.FeatureSchedule, error) {
	return f.entries, nil
}

func (f *fakeSchedule) RestoreEntries(_ context.Context, entries []models.FeatureSchedule, actor string) error {
	f.restored = entries
	f.actor = actor
	return nil
}

func fixtureEntries() []models.FeatureSchedule {
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	return []models.FeatureSchedule{
		{
			ID:               "e1",
			EventKey:         "expo",
			RequestedStartAt: start,
			EffectiveStartAt: &start,
			EffectiveEndAt:   &end,
			DurationHours:    48,
			Status:           models.FeatureStatusScheduled,
		},
		{
			ID:               "e2",
			EventKey:         "concert",
			RequestedStartAt: start,
			DurationHours:    24,
			Status:           models.FeatureStatusCancelled,
		},
	}
}

func TestBackupRoundTrip(t *testing.T) {
	schedule := &fakeSchedule{entries: fixtureEntries()}
	store := storage.NewFilesystemStore(t.TempDir(), zerolog.Nop())
	svc := NewService(schedule, store, zerolog.Nop())
	ctx := context.Background()

	key, err := svc.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	data, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get snapshot: %v", err)
	}
	var doc Snapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if doc.Version != snapshotVersion {
		t.Errorf("version = %d, want %d", doc.Version, snapshotVersion)
	}
	if len(doc.Entries) != 2 {
		t.Fatalf("snapshot has %d entries, want 2", len(doc.Entries))
	}

	if err := svc.Restore(ctx, key, "alice"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(schedule.restored) != 2 {
		t.Fatalf("restored %d entries, want 2", len(schedule.restored))
	}
	if schedule.actor != "alice" {
		t.Errorf("actor = %q, want alice", schedule.actor)
	}
	if schedule.restored[0].ID != "e1" || schedule.restored[0].EffectiveStartAt == nil {
		t.Errorf("entry e1 lost fields across round trip: %+v", schedule.restored[0])
	}
	if schedule.restored[1].EffectiveStartAt != nil {
		t.Error("cancelled entry gained a window across round trip")
	}
}

func TestRestoreLatest(t *testing.T) {
	schedule := &fakeSchedule{entries: fixtureEntries()}
	store := storage.NewFilesystemStore(t.TempDir(), zerolog.Nop())
	svc := NewService(schedule, store, zerolog.Nop())
	ctx := context.Background()

	svc.now = func() time.Time { return time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC) }
	if _, err := svc.Backup(ctx); err != nil {
		t.Fatalf("Backup old: %v", err)
	}

	schedule.entries = schedule.entries[:1]
	svc.now = func() time.Time { return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC) }
	newest, err := svc.Backup(ctx)
	if err != nil {
		t.Fatalf("Backup new: %v", err)
	}

	key, err := svc.RestoreLatest(ctx, "ops")
	if err != nil {
		t.Fatalf("RestoreLatest: %v", err)
	}
	if key != newest {
		t.Errorf("restored %q, want newest %q", key, newest)
	}
	if len(schedule.restored) != 1 {
		t.Errorf("restored %d entries, want 1 from newest snapshot", len(schedule.restored))
	}
}

func TestRestore_RejectsUnknownVersion(t *testing.T) {
	schedule := &fakeSchedule{}
	store := storage.NewFilesystemStore(t.TempDir(), zerolog.Nop())
	svc := NewService(schedule, store, zerolog.Nop())
	ctx := context.Background()

	if err := store.Put(ctx, "backups/bad.json", []byte(`{"version":99,"entries":[]}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := svc.Restore(ctx, "backups/bad.json", "ops"); err == nil {
		t.Error("restore accepted unknown snapshot version")
	}
}
