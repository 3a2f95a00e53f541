package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"EstouBem/internal/model"
)

// MemoryStore 进程内实现，语义与 GormStore 保持一致，供单元测试和本地调试使用
type MemoryStore struct {
	mu sync.Mutex

	checkIns map[string][]model.CheckIn
	users    map[string]*model.User
	contacts map[string]*model.TrustedContact
	markers  map[string]*model.NotificationMarker
	tasks    map[int64]*model.NotificationTask
	attempts []model.ContactAttempt
	nextID   int64

	// FailReads 置位后所有读操作返回该错误
	FailReads error
	// FailWrites 置位后所有写操作返回该错误
	FailWrites error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkIns: make(map[string][]model.CheckIn),
		users:    make(map[string]*model.User),
		contacts: make(map[string]*model.TrustedContact),
		markers:  make(map[string]*model.NotificationMarker),
		tasks:    make(map[int64]*model.NotificationTask),
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) CreateCheckIn(ctx context.Context, checkIn *model.CheckIn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	if checkIn.DailyKey != nil {
		for _, existing := range s.checkIns[checkIn.UserID] {
			if existing.DailyKey != nil && *existing.DailyKey == *checkIn.DailyKey {
				return ErrDuplicateCheckIn
			}
		}
	}
	if checkIn.ID == 0 {
		checkIn.ID = s.id()
	}
	if checkIn.CreatedAt.IsZero() {
		checkIn.CreatedAt = checkIn.OccurredAt
	}
	s.checkIns[checkIn.UserID] = append(s.checkIns[checkIn.UserID], *checkIn)
	return nil
}

func (s *MemoryStore) LastCheckIn(ctx context.Context, userID string) (*model.CheckIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReads != nil {
		return nil, s.FailReads
	}
	last := s.lastCheckInLocked(userID)
	if last == nil {
		return nil, ErrNotFound
	}
	cp := *last
	return &cp, nil
}

func (s *MemoryStore) lastCheckInLocked(userID string) *model.CheckIn {
	var last *model.CheckIn
	for i := range s.checkIns[userID] {
		c := &s.checkIns[userID][i]
		if last == nil || c.OccurredAt.After(last.OccurredAt) {
			last = c
		}
	}
	return last
}

func (s *MemoryStore) ListCheckIns(ctx context.Context, userID string, since time.Time) ([]model.CheckIn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReads != nil {
		return nil, s.FailReads
	}
	out := make([]model.CheckIn, 0)
	for _, c := range s.checkIns[userID] {
		if !c.OccurredAt.Before(since) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	return out, nil
}

func (s *MemoryStore) EnsureUser(ctx context.Context, userID string, now time.Time) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return nil, s.FailWrites
	}
	u, ok := s.users[userID]
	if !ok {
		u = &model.User{UserID: userID}
		u.ID = s.id()
		u.CreatedAt = now
		u.UpdatedAt = now
		s.users[userID] = u
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReads != nil {
		return nil, s.FailReads
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.DisplayName = displayName
	return nil
}

func (s *MemoryStore) GetContact(ctx context.Context, userID string) (*model.TrustedContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReads != nil {
		return nil, s.FailReads
	}
	c, ok := s.contacts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) UpsertContact(ctx context.Context, contact *model.TrustedContact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	now := time.Now().UTC()
	if existing, ok := s.contacts[contact.UserID]; ok {
		contact.ID = existing.ID
		contact.CreatedAt = existing.CreatedAt
	} else {
		contact.ID = s.id()
		if contact.CreatedAt.IsZero() {
			contact.CreatedAt = now
		}
	}
	if contact.UpdatedAt.IsZero() {
		contact.UpdatedAt = now
	}
	cp := *contact
	s.contacts[contact.UserID] = &cp
	return nil
}

func (s *MemoryStore) DeleteContact(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return false, s.FailWrites
	}
	_, ok := s.contacts[userID]
	delete(s.contacts, userID)
	return ok, nil
}

func (s *MemoryStore) GetMarker(ctx context.Context, userID string) (*model.NotificationMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReads != nil {
		return nil, s.FailReads
	}
	m, ok := s.markers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) CompareAndSetMarker(ctx context.Context, userID string, expectedVersion int64, episodeStart, notifiedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}

	current, ok := s.markers[userID]
	var version int64
	if ok {
		version = current.Version
	}
	if version != expectedVersion {
		return ErrMarkerConflict
	}

	s.markers[userID] = &model.NotificationMarker{
		UserID:       userID,
		EpisodeStart: episodeStart,
		NotifiedAt:   notifiedAt,
		Version:      version + 1,
		UpdatedAt:    notifiedAt,
	}
	return nil
}

func (s *MemoryStore) GetOrCreateTask(ctx context.Context, task *model.NotificationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	for _, t := range s.tasks {
		if t.UserID == task.UserID && t.EpisodeStart.Equal(task.EpisodeStart) {
			*task = *t
			return nil
		}
	}
	task.ID = s.id()
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	cp := *task
	s.tasks[task.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateTask(ctx context.Context, task *model.NotificationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	t, ok := s.tasks[task.ID]
	if !ok {
		return ErrNotFound
	}
	t.Status = task.Status
	t.RetryCount = task.RetryCount
	t.LastError = task.LastError
	t.ProcessedAt = task.ProcessedAt
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateAttempt(ctx context.Context, attempt *model.ContactAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	attempt.ID = s.id()
	s.attempts = append(s.attempts, *attempt)
	return nil
}

func (s *MemoryStore) ListAttempts(ctx context.Context, taskCode int64) ([]model.ContactAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ContactAttempt, 0)
	for _, a := range s.attempts {
		if a.TaskCode == taskCode {
			out = append(out, a)
		}
	}
	return out, nil
}

// Tasks 返回所有任务快照，测试断言用
func (s *MemoryStore) Tasks() []model.NotificationTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.NotificationTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) ListMonitored(ctx context.Context, afterUserID string, limit int) ([]model.MonitoredUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReads != nil {
		return nil, s.FailReads
	}

	ids := make([]string, 0, len(s.contacts))
	for id := range s.contacts {
		if strings.Compare(id, afterUserID) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]model.MonitoredUser, 0, len(ids))
	for _, id := range ids {
		row := model.MonitoredUser{UserID: id, RegisteredAt: s.contacts[id].CreatedAt}
		if u, ok := s.users[id]; ok {
			row.RegisteredAt = u.CreatedAt
		}
		if last := s.lastCheckInLocked(id); last != nil {
			t := last.OccurredAt
			row.LastCheckIn = &t
		}
		if m, ok := s.markers[id]; ok {
			t := m.NotifiedAt
			row.LastNotifiedAt = &t
		}
		out = append(out, row)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*GormStore)(nil)
