package depletion

import (
	"errors"
	"strings"
	"testing"
	"time"

	"prontuario/internal/fieldcrypt"
	"prontuario/pkg/domain"
	"prontuario/pkg/store"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestJob(t *testing.T, st store.Store, now time.Time) *Job {
	t.Helper()
	codec, err := fieldcrypt.New(testKey, true)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	job, err := New(Config{
		Store: st,
		Codec: codec,
		Now:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	return job
}

func encryptField(t *testing.T, plaintext string) string {
	t.Helper()
	codec, err := fieldcrypt.New(testKey, true)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	encrypted, err := codec.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return encrypted
}

func trackedMedication(t *testing.T, stock float64, updatedAt time.Time) domain.Medication {
	t.Helper()
	return domain.Medication{
		ID:              "med-1",
		UserID:          "user-1",
		Name:            encryptField(t, "Losartana"),
		FrequencyUnit:   domain.FrequencyDay,
		FrequencyNumber: 2,
		DoseQuantity:    1,
		Stock:           &stock,
		Status:          domain.MedicationActive,
		StartDate:       updatedAt.Add(-30 * 24 * time.Hour),
		CreatedAt:       updatedAt.Add(-30 * 24 * time.Hour),
		UpdatedAt:       updatedAt,
	}
}

func currentStock(t *testing.T, st store.Store, id string) (float64, domain.Medication) {
	t.Helper()
	med, ok, err := st.GetMedication(id)
	if err != nil || !ok {
		t.Fatalf("get medication %s: ok=%v err=%v", id, ok, err)
	}
	if med.Stock == nil {
		t.Fatalf("medication %s lost its stock tracking", id)
	}
	return *med.Stock, med
}

func TestRunDepletesHealthyStockWithoutNotification(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	if err := st.SaveMedication(trackedMedication(t, 100, now.Add(-3*24*time.Hour))); err != nil {
		t.Fatalf("save medication: %v", err)
	}

	summary, err := newTestJob(t, st, now).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 1 || summary.Notifications != 0 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	stock, med := currentStock(t, st, "med-1")
	if stock != 94 {
		t.Fatalf("stock = %v, want 94", stock)
	}
	if med.Status != domain.MedicationActive {
		t.Fatalf("status = %s, want active", med.Status)
	}
	if !med.UpdatedAt.Equal(now) {
		t.Fatalf("updatedAt = %v, want %v", med.UpdatedAt, now)
	}
}

func TestRunEmitsNotificationInsideLowStockBand(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	if err := st.SaveMedication(trackedMedication(t, 10, now.Add(-3*24*time.Hour))); err != nil {
		t.Fatalf("save medication: %v", err)
	}

	summary, err := newTestJob(t, st, now).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 1 || summary.Notifications != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	stock, _ := currentStock(t, st, "med-1")
	if stock != 4 {
		t.Fatalf("stock = %v, want 4", stock)
	}

	notes, err := st.ListNotificationsByUser("user-1")
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected one notification, got %d", len(notes))
	}
	n := notes[0]
	if n.Category != domain.NotificationLowStock || n.MedicationID != "med-1" || n.Read {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if !strings.Contains(n.Message, "Losartana") {
		t.Fatalf("notification message should carry the decrypted name, got %q", n.Message)
	}
}

func TestRunDeduplicatesAgainstUnreadNotification(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	if err := st.SaveMedication(trackedMedication(t, 10, now.Add(-3*24*time.Hour))); err != nil {
		t.Fatalf("save medication: %v", err)
	}

	if _, err := newTestJob(t, st, now).Run(); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// A day later, still inside the band, the unread notification must
	// suppress a second one.
	later := now.Add(24 * time.Hour)
	summary, err := newTestJob(t, st, later).Run()
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Processed != 1 || summary.Notifications != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	notes, _ := st.ListNotificationsByUser("user-1")
	if len(notes) != 1 {
		t.Fatalf("expected dedup to hold at one notification, got %d", len(notes))
	}
}

func TestMarkingNotificationReadReArmsTheGate(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	if err := st.SaveMedication(trackedMedication(t, 12, now.Add(-24*time.Hour))); err != nil {
		t.Fatalf("save medication: %v", err)
	}

	if _, err := newTestJob(t, st, now).Run(); err != nil {
		t.Fatalf("first run: %v", err)
	}
	notes, _ := st.ListNotificationsByUser("user-1")
	if len(notes) != 1 {
		t.Fatalf("expected one notification, got %d", len(notes))
	}
	if err := st.MarkNotificationRead(notes[0].ID, "user-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	summary, err := newTestJob(t, st, now.Add(24*time.Hour)).Run()
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Notifications != 1 {
		t.Fatalf("expected a fresh notification after read, summary: %+v", summary)
	}
}

func TestRunIsIdempotentWithinTheSameDay(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	if err := st.SaveMedication(trackedMedication(t, 100, now.Add(-3*24*time.Hour))); err != nil {
		t.Fatalf("save medication: %v", err)
	}

	job := newTestJob(t, st, now)
	if _, err := job.Run(); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := job.Run()
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Processed != 0 {
		t.Fatalf("same-day re-run should be a no-op, summary: %+v", summary)
	}
	stock, _ := currentStock(t, st, "med-1")
	if stock != 94 {
		t.Fatalf("stock = %v, want 94 after re-run", stock)
	}
}

func TestRunFloorsStockAtZeroAndCompletes(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	if err := st.SaveMedication(trackedMedication(t, 4, now.Add(-2*24*time.Hour))); err != nil {
		t.Fatalf("save medication: %v", err)
	}

	summary, err := newTestJob(t, st, now).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	stock, med := currentStock(t, st, "med-1")
	if stock != 0 {
		t.Fatalf("stock = %v, want 0", stock)
	}
	if med.Status != domain.MedicationCompleted {
		t.Fatalf("status = %s, want completed", med.Status)
	}
	// daysRemaining = 0 falls outside the strictly-positive band.
	if summary.Notifications != 0 {
		t.Fatalf("no notification expected at zero stock, summary: %+v", summary)
	}
}

func TestRunConsumesMoreThanStockAndStillFloors(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()
	if err := st.SaveMedication(trackedMedication(t, 3, now.Add(-10*24*time.Hour))); err != nil {
		t.Fatalf("save medication: %v", err)
	}

	if _, err := newTestJob(t, st, now).Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	stock, med := currentStock(t, st, "med-1")
	if stock != 0 || med.Status != domain.MedicationCompleted {
		t.Fatalf("stock = %v status = %s, want 0/completed", stock, med.Status)
	}
}

func TestRunSkipsIneligibleMedications(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	st := store.NewMemoryStore()

	suspended := trackedMedication(t, 50, now.Add(-3*24*time.Hour))
	suspended.ID = "med-suspended"
	suspended.Status = domain.MedicationSuspended

	untracked := trackedMedication(t, 50, now.Add(-3*24*time.Hour))
	untracked.ID = "med-untracked"
	untracked.Stock = nil

	future := trackedMedication(t, 50, now.Add(-3*24*time.Hour))
	future.ID = "med-future"
	future.StartDate = now.Add(24 * time.Hour)

	unknownUnit := trackedMedication(t, 50, now.Add(-3*24*time.Hour))
	unknownUnit.ID = "med-unknown-unit"
	unknownUnit.FrequencyUnit = domain.FrequencyUnit("moon")

	for _, med := range []domain.Medication{suspended, untracked, future, unknownUnit} {
		if err := st.SaveMedication(med); err != nil {
			t.Fatalf("save %s: %v", med.ID, err)
		}
	}

	summary, err := newTestJob(t, st, now).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 0 || summary.Notifications != 0 || summary.Skipped != 0 {
		t.Fatalf("ineligible medications should be untouched, summary: %+v", summary)
	}
	stock, _ := currentStock(t, st, "med-suspended")
	if stock != 50 {
		t.Fatalf("suspended medication stock changed to %v", stock)
	}
}

// failingStore wraps the memory store and fails writes for one medication.
type failingStore struct {
	*store.MemoryStore
	failID string
}

func (f *failingStore) ApplyDepletion(id string, newStock float64, status domain.MedicationStatus, at time.Time) error {
	if id == f.failID {
		return errors.New("simulated write failure")
	}
	return f.MemoryStore.ApplyDepletion(id, newStock, status, at)
}

func TestRunToleratesPerItemFailures(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	mem := store.NewMemoryStore()

	bad := trackedMedication(t, 100, now.Add(-2*24*time.Hour))
	bad.ID = "med-bad"
	good := trackedMedication(t, 100, now.Add(-2*24*time.Hour))
	good.ID = "med-good"
	for _, med := range []domain.Medication{bad, good} {
		if err := mem.SaveMedication(med); err != nil {
			t.Fatalf("save %s: %v", med.ID, err)
		}
	}

	st := &failingStore{MemoryStore: mem, failID: "med-bad"}
	summary, err := newTestJob(t, st, now).Run()
	if err != nil {
		t.Fatalf("run should tolerate item failures: %v", err)
	}
	if summary.Processed != 1 || summary.Skipped != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	stock, _ := currentStock(t, st, "med-good")
	if stock != 96 {
		t.Fatalf("healthy item stock = %v, want 96", stock)
	}
	stock, _ = currentStock(t, st, "med-bad")
	if stock != 100 {
		t.Fatalf("failed item stock changed to %v", stock)
	}
}

type brokenCandidateStore struct {
	*store.MemoryStore
}

func (b *brokenCandidateStore) ListDepletionCandidates(time.Time) ([]domain.Medication, error) {
	return nil, errors.New("database unavailable")
}

func TestRunSurfacesCandidateLoadFailure(t *testing.T) {
	now := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	st := &brokenCandidateStore{MemoryStore: store.NewMemoryStore()}
	if _, err := newTestJob(t, st, now).Run(); err == nil {
		t.Fatalf("expected run to fail when the candidate load fails")
	}
}
