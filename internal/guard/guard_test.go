package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Tollgate/internal/domain"
	"github.com/shaiso/Tollgate/internal/records"
)

// fakeJournal запоминает вызовы журнала.
type fakeJournal struct {
	mu        sync.Mutex
	appended  []uuid.UUID
	discarded []uuid.UUID
	restored  []uuid.UUID
	failed    []uuid.UUID
	appendErr error
}

func (j *fakeJournal) Append(_ context.Context, e *domain.UndoEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.appendErr != nil {
		return j.appendErr
	}
	j.appended = append(j.appended, e.ID)
	return nil
}

func (j *fakeJournal) Discard(_ context.Context, id uuid.UUID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.discarded = append(j.discarded, id)
	return nil
}

func (j *fakeJournal) MarkRestored(_ context.Context, id uuid.UUID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.restored = append(j.restored, id)
	return nil
}

func (j *fakeJournal) MarkFailed(_ context.Context, id uuid.UUID, _ string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failed = append(j.failed, id)
	return nil
}

var applicant = domain.Identity{
	Phone:     "13800138000",
	IDNumber:  "11010519491231002X",
	PlateNo:   "JING A12345",
	OwnerName: "Zhang San",
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGuard(store records.Store, journal Journal) *Guard {
	cfg := Config{Store: store, Logger: testLogger()}
	if journal != nil {
		cfg.Journal = journal
	}
	return New(cfg)
}

func personRecord(kind domain.RecordKind, id, status string) records.Record {
	return records.Record{
		Kind:     kind,
		ID:       id,
		Phone:    applicant.Phone,
		IDNumber: applicant.IDNumber,
		Status:   status,
	}
}

func TestGuard_ScenarioA_NoRecords(t *testing.T) {
	store := records.NewMemoryStore()
	g := newTestGuard(store, nil)

	called := false
	scope, err := g.Protect(context.Background(), uuid.New(), applicant, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn must be called")
	}
	if len(scope.Matches) != 0 || len(scope.Entries) != 0 {
		t.Errorf("expected no matches and no undo entries, got %d/%d", len(scope.Matches), len(scope.Entries))
	}
	if len(store.Writes()) != 0 {
		t.Errorf("expected no status writes, got %v", store.Writes())
	}
}

func TestGuard_ScenarioB_MutateAndRestore(t *testing.T) {
	store := records.NewMemoryStore(personRecord(domain.RecordKindCard, "C-1", "1"))
	journal := &fakeJournal{}
	g := newTestGuard(store, journal)

	scope, err := g.Protect(context.Background(), uuid.New(), applicant, func(ctx context.Context) error {
		if st := store.Status(domain.RecordKindCard, "C-1"); st == "1" {
			t.Errorf("record must be unblocked during the saga, status %s", st)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(scope.Matches) != 1 || scope.Matches[0].Confidence != domain.ConfidenceHigh {
		t.Fatalf("expected one high-confidence match, got %+v", scope.Matches)
	}
	if len(scope.Entries) != 1 || scope.Entries[0].OriginalStatus != "1" {
		t.Fatalf("expected one undo entry with original status 1, got %+v", scope.Entries)
	}
	if !scope.Entries[0].Restored {
		t.Error("undo entry must be marked restored")
	}
	if st := store.Status(domain.RecordKindCard, "C-1"); st != "1" {
		t.Errorf("expected status restored to 1, got %s", st)
	}

	if len(journal.appended) != 1 || len(journal.restored) != 1 {
		t.Errorf("expected write-ahead and restore marks, got %+v", journal)
	}
}

func TestGuard_Check_TwoTiersDeduplicated(t *testing.T) {
	both := personRecord(domain.RecordKindCard, "C-1", "1")
	both.PlateNo = applicant.PlateNo
	both.OwnerName = applicant.OwnerName

	store := records.NewMemoryStore(
		both,
		records.Record{Kind: domain.RecordKindOBU, ID: "O-1", PlateNo: "jing a12345", OwnerName: applicant.OwnerName, Status: "1"},
		records.Record{Kind: domain.RecordKindOBU, ID: "O-2", PlateNo: applicant.PlateNo, OwnerName: applicant.OwnerName, Status: records.StatusWrittenOff},
	)
	g := newTestGuard(store, nil)

	matches, err := g.Check(context.Background(), applicant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %+v", matches)
	}

	want := map[string]domain.Confidence{
		"card:C-1": domain.ConfidenceHigh,
		"obu:O-1":  domain.ConfidenceMedium,
	}
	for _, m := range matches {
		if want[m.Key()] != m.Confidence {
			t.Errorf("%s: expected %s, got %s", m.Key(), want[m.Key()], m.Confidence)
		}
	}
}

func TestGuard_Check_SkipsTierWithoutKeys(t *testing.T) {
	store := records.NewMemoryStore(personRecord(domain.RecordKindCard, "C-1", "1"))
	g := newTestGuard(store, nil)

	matches, err := g.Check(context.Background(), domain.Identity{PlateNo: "X"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %+v", matches)
	}
}

func TestGuard_FilterNeedsMutation(t *testing.T) {
	matches := []domain.RecordMatch{
		{Kind: domain.RecordKindCard, RecordID: "C-1", Status: "1"},
		{Kind: domain.RecordKindCard, RecordID: "C-2", Status: "2"},
		{Kind: domain.RecordKindOBU, RecordID: "O-1", Status: "3"},
	}

	g := newTestGuard(records.NewMemoryStore(), nil)
	toMutate, toSkip := g.FilterNeedsMutation(matches)
	if len(toMutate) != 1 || toMutate[0].RecordID != "C-1" {
		t.Errorf("expected only C-1 to mutate, got %+v", toMutate)
	}
	if len(toSkip) != 2 {
		t.Errorf("expected 2 skipped, got %+v", toSkip)
	}

	debug := New(Config{Store: records.NewMemoryStore(), MutateAll: true, Logger: testLogger()})
	toMutate, toSkip = debug.FilterNeedsMutation(matches)
	if len(toMutate) != 3 || len(toSkip) != 0 {
		t.Errorf("MutateAll must select every match, got %d/%d", len(toMutate), len(toSkip))
	}
}

func TestGuard_PartialMutation(t *testing.T) {
	store := records.NewMemoryStore(
		personRecord(domain.RecordKindCard, "C-1", "1"),
		personRecord(domain.RecordKindOBU, "O-1", "1"),
	)
	store.FailWrites(domain.RecordKindOBU, "O-1", errors.New("lock wait timeout"))
	journal := &fakeJournal{}
	g := newTestGuard(store, journal)

	scope, err := g.Acquire(context.Background(), uuid.New(), applicant)
	if err != nil {
		t.Fatalf("partial success must not fail, got %v", err)
	}
	if len(scope.Entries) != 1 || scope.Entries[0].RecordID != "C-1" {
		t.Fatalf("expected undo entry only for C-1, got %+v", scope.Entries)
	}
	if len(journal.discarded) != 1 {
		t.Errorf("expected the failed write to be discarded from the journal, got %d", len(journal.discarded))
	}

	scope.Release(context.Background())
	if store.Status(domain.RecordKindCard, "C-1") != "1" {
		t.Error("C-1 must be restored")
	}
}

func TestGuard_NothingMutatedAborts(t *testing.T) {
	store := records.NewMemoryStore(personRecord(domain.RecordKindCard, "C-1", "1"))
	store.FailWrites(domain.RecordKindCard, "C-1", errors.New("read only"))
	g := newTestGuard(store, nil)

	called := false
	_, err := g.Protect(context.Background(), uuid.New(), applicant, func(ctx context.Context) error {
		called = true
		return nil
	})

	if called {
		t.Fatal("fn must not run when no record could be unblocked")
	}
	if !errors.Is(err, domain.ErrDuplicateGuard) {
		t.Errorf("expected ErrDuplicateGuard, got %v", err)
	}
	if !errors.Is(err, ErrNothingMutated) {
		t.Errorf("expected ErrNothingMutated, got %v", err)
	}
}

func TestGuard_JournalFailureBlocksMutation(t *testing.T) {
	store := records.NewMemoryStore(personRecord(domain.RecordKindCard, "C-1", "1"))
	g := newTestGuard(store, &fakeJournal{appendErr: errors.New("pg down")})

	_, err := g.Acquire(context.Background(), uuid.New(), applicant)
	if !errors.Is(err, domain.ErrDuplicateGuard) {
		t.Fatalf("expected guard failure, got %v", err)
	}
	if store.Status(domain.RecordKindCard, "C-1") != "1" {
		t.Error("record must not change without a journal entry")
	}
}

func TestGuard_RestoresOnPanic(t *testing.T) {
	store := records.NewMemoryStore(personRecord(domain.RecordKindCard, "C-1", "1"))
	g := newTestGuard(store, nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic must be re-raised")
			}
		}()
		g.Protect(context.Background(), uuid.New(), applicant, func(ctx context.Context) error {
			panic("boom")
		})
	}()

	if st := store.Status(domain.RecordKindCard, "C-1"); st != "1" {
		t.Errorf("expected status restored after panic, got %s", st)
	}
}

func TestGuard_RestoresOnError(t *testing.T) {
	store := records.NewMemoryStore(personRecord(domain.RecordKindCard, "C-1", "1"))
	g := newTestGuard(store, nil)

	sagaErr := errors.New("5. submit_identity failed")
	ctx, cancel := context.WithCancel(context.Background())

	_, err := g.Protect(ctx, uuid.New(), applicant, func(ctx context.Context) error {
		cancel()
		return sagaErr
	})
	if !errors.Is(err, sagaErr) {
		t.Fatalf("expected saga error, got %v", err)
	}
	if st := store.Status(domain.RecordKindCard, "C-1"); st != "1" {
		t.Errorf("expected status restored after cancelled saga, got %s", st)
	}
}

func TestRestorer_Idempotent(t *testing.T) {
	store := records.NewMemoryStore(personRecord(domain.RecordKindCard, "C-1", "2"))
	journal := &fakeJournal{}
	r := NewRestorer(store, journal, testLogger())

	entries := []*domain.UndoEntry{{
		ID:             uuid.New(),
		Kind:           domain.RecordKindCard,
		RecordID:       "C-1",
		OriginalStatus: "1",
	}}

	first := r.Restore(context.Background(), entries)
	if first.Restored != 1 || first.Err != nil {
		t.Fatalf("unexpected first report: %+v", first)
	}

	second := r.Restore(context.Background(), entries)
	if second.Restored != 0 || second.Skipped != 1 {
		t.Errorf("second pass must skip, got %+v", second)
	}
	if len(store.Writes()) != 1 {
		t.Errorf("expected exactly one write, got %d", len(store.Writes()))
	}
	if len(journal.restored) != 1 {
		t.Errorf("expected one restore mark, got %d", len(journal.restored))
	}
}

func TestRestorer_FailureNotEscalated(t *testing.T) {
	store := records.NewMemoryStore(
		personRecord(domain.RecordKindCard, "C-1", "2"),
		personRecord(domain.RecordKindOBU, "O-1", "2"),
	)
	store.FailWrites(domain.RecordKindCard, "C-1", errors.New("deadlock"))
	journal := &fakeJournal{}
	r := NewRestorer(store, journal, testLogger())

	entries := []*domain.UndoEntry{
		{ID: uuid.New(), Kind: domain.RecordKindCard, RecordID: "C-1", OriginalStatus: "1"},
		{ID: uuid.New(), Kind: domain.RecordKindOBU, RecordID: "O-1", OriginalStatus: "1"},
	}

	report := r.Restore(context.Background(), entries)
	if report.Restored != 1 || report.Failed != 1 {
		t.Fatalf("expected 1 restored and 1 failed, got %+v", report)
	}
	if !errors.Is(report.Err, domain.ErrCompensation) {
		t.Errorf("expected ErrCompensation, got %v", report.Err)
	}
	if entries[0].FailedReason == "" || entries[0].Restored {
		t.Errorf("failed entry must carry a reason, got %+v", entries[0])
	}
	if store.Status(domain.RecordKindOBU, "O-1") != "1" {
		t.Error("best-effort pass must still restore O-1")
	}

	// Неудачная запись повторно в этой сессии не трогается.
	again := r.Restore(context.Background(), entries)
	if again.Skipped != 2 {
		t.Errorf("expected both entries skipped, got %+v", again)
	}
}
