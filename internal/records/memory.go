package records

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/shaiso/Tollgate/internal/domain"
)

// Record: запись выдачи в MemoryStore.
type Record struct {
	Kind      domain.RecordKind
	ID        string
	Phone     string
	IDNumber  string
	PlateNo   string
	OwnerName string
	Status    string
	AuditNote string
}

// Write описывает одну запись статуса в MemoryStore.
type Write struct {
	Kind     domain.RecordKind
	RecordID string
	Status   string
	Note     string
}

// MemoryStore хранит записи в памяти. Потокобезопасен.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	blocked []string
	writes  []Write

	// failWrites: записи, для которых WriteStatus вернёт ошибку.
	failWrites map[string]error
}

// NewMemoryStore создаёт MemoryStore с записями recs.
func NewMemoryStore(recs ...Record) *MemoryStore {
	s := &MemoryStore{
		records:    make(map[string]*Record),
		blocked:    DefaultBlockedStatuses,
		failWrites: make(map[string]error),
	}
	for _, r := range recs {
		s.Put(r)
	}
	return s
}

// Put добавляет или заменяет запись.
func (s *MemoryStore) Put(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := r
	s.records[memKey(r.Kind, r.ID)] = &rec
}

// FailWrites заставляет WriteStatus для записи возвращать err.
// nil снимает отказ.
func (s *MemoryStore) FailWrites(kind domain.RecordKind, recordID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failWrites, memKey(kind, recordID))
		return
	}
	s.failWrites[memKey(kind, recordID)] = err
}

// FindMatches реализует Store.
func (s *MemoryStore) FindMatches(ctx context.Context, key MatchKey, id domain.Identity) ([]domain.RecordMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []domain.RecordMatch
	for _, r := range s.records {
		if slices.Contains(s.blocked, r.Status) {
			continue
		}

		var hit bool
		switch key {
		case ByPerson:
			hit = r.Phone == id.Phone && strings.EqualFold(r.IDNumber, id.IDNumber)
		case ByVehicle:
			hit = strings.EqualFold(r.PlateNo, id.PlateNo) && r.OwnerName == id.OwnerName
		default:
			return nil, fmt.Errorf("unknown match key %d", key)
		}
		if hit {
			matches = append(matches, domain.RecordMatch{Kind: r.Kind, RecordID: r.ID, Status: r.Status})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Key() < matches[j].Key() })
	return matches, nil
}

// ReadStatus реализует Store.
func (s *MemoryStore) ReadStatus(ctx context.Context, kind domain.RecordKind, recordID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[memKey(kind, recordID)]
	if !ok {
		return "", fmt.Errorf("%w: %s %s", ErrNotFound, kind, recordID)
	}
	return r.Status, nil
}

// WriteStatus реализует Store.
func (s *MemoryStore) WriteStatus(ctx context.Context, kind domain.RecordKind, recordID, status, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey(kind, recordID)
	if err := s.failWrites[k]; err != nil {
		return err
	}

	r, ok := s.records[k]
	if !ok {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, recordID)
	}
	r.Status = status
	r.AuditNote = note
	s.writes = append(s.writes, Write{Kind: kind, RecordID: recordID, Status: status, Note: note})
	return nil
}

// Status возвращает статус записи или пустую строку.
func (s *MemoryStore) Status(kind domain.RecordKind, recordID string) string {
	st, _ := s.ReadStatus(context.Background(), kind, recordID)
	return st
}

// Writes возвращает копию журнала успешных записей статуса.
func (s *MemoryStore) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

func memKey(kind domain.RecordKind, id string) string {
	return string(kind) + ":" + id
}
