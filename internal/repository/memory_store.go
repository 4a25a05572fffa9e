package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Jerry-Khobby/matchmaking-system/internal/models"
)

// MemoryStore 프로세스 내 Store. 단일 writer 락과 copy-on-write 스테이징으로 RunAtomic을 구현한다
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	users      map[string]*models.User
	queue      map[string]models.QueueEntry // playerID -> entry
	matches    map[string]*models.Match
	matchOrder []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			users:   make(map[string]*models.User),
			queue:   make(map[string]models.QueueEntry),
			matches: make(map[string]*models.Match),
		},
	}
}

func (st *memState) clone() *memState {
	next := &memState{
		users:      make(map[string]*models.User, len(st.users)),
		queue:      make(map[string]models.QueueEntry, len(st.queue)),
		matches:    make(map[string]*models.Match, len(st.matches)),
		matchOrder: append([]string(nil), st.matchOrder...),
	}
	for id, u := range st.users {
		next.users[id] = copyUser(u)
	}
	for id, e := range st.queue {
		next.queue[id] = e
	}
	for id, m := range st.matches {
		next.matches[id] = copyMatch(m)
	}
	return next
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.MatchHistory = append([]string{}, u.MatchHistory...)
	return &c
}

func copyMatch(m *models.Match) *models.Match {
	c := *m
	if m.WinnerID != nil {
		w := *m.WinnerID
		c.WinnerID = &w
	}
	if m.Result != nil {
		r := *m.Result
		c.Result = &r
	}
	if m.StartedAt != nil {
		t := *m.StartedAt
		c.StartedAt = &t
	}
	if m.EndedAt != nil {
		t := *m.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// memRepos tx가 nil이면 호출마다 락을 잡고 커밋된 상태에 직접 접근
type memRepos struct {
	store *MemoryStore
	tx    *memState
}

func (r *memRepos) with(fn func(st *memState) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.state)
}

func (s *MemoryStore) Users() UserDirectory     { return &memUsers{&memRepos{store: s}} }
func (s *MemoryStore) Queue() QueueRepository   { return &memQueue{&memRepos{store: s}} }
func (s *MemoryStore) Matches() MatchRepository { return &memMatches{&memRepos{store: s}} }

type memTx struct{ r *memRepos }

func (t memTx) Users() UserDirectory     { return &memUsers{t.r} }
func (t memTx) Queue() QueueRepository   { return &memQueue{t.r} }
func (t memTx) Matches() MatchRepository { return &memMatches{t.r} }

// RunAtomic fn은 스테이징 복사본을 변경하고, 성공 시에만 커밋된 상태와 교체된다
func (s *MemoryStore) RunAtomic(ctx context.Context, fn func(tx Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := s.state.clone()
	if err := fn(memTx{&memRepos{store: s, tx: staged}}); err != nil {
		return err
	}
	s.state = staged
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                   { return nil }

type memUsers struct{ *memRepos }

func (u *memUsers) Create(ctx context.Context, user *models.User) error {
	return u.with(func(st *memState) error {
		for _, existing := range st.users {
			if existing.Username == user.Username {
				return fmt.Errorf("username %q: %w", user.Username, ErrDuplicate)
			}
		}
		if _, ok := st.users[user.ID]; ok {
			return fmt.Errorf("user %s: %w", user.ID, ErrDuplicate)
		}
		now := time.Now().UTC()
		user.CreatedAt, user.UpdatedAt = now, now
		if user.MatchHistory == nil {
			user.MatchHistory = []string{}
		}
		st.users[user.ID] = copyUser(user)
		return nil
	})
}

func (u *memUsers) Get(ctx context.Context, id string) (*models.User, error) {
	var out *models.User
	err := u.with(func(st *memState) error {
		if user, ok := st.users[id]; ok {
			out = copyUser(user)
		}
		return nil
	})
	return out, err
}

func (u *memUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var out *models.User
	err := u.with(func(st *memState) error {
		for _, user := range st.users {
			if user.Username == username {
				out = copyUser(user)
				break
			}
		}
		return nil
	})
	return out, err
}

func (u *memUsers) update(id string, fn func(user *models.User)) error {
	return u.with(func(st *memState) error {
		user, ok := st.users[id]
		if !ok {
			return ErrNotFound
		}
		fn(user)
		user.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (u *memUsers) UpdateRating(ctx context.Context, id string, rating int) error {
	return u.update(id, func(user *models.User) { user.Rating = rating })
}

func (u *memUsers) UpdateStatus(ctx context.Context, id string, status models.UserStatus) error {
	return u.update(id, func(user *models.User) { user.Status = status })
}

func (u *memUsers) AppendMatchHistory(ctx context.Context, id, matchID string) error {
	return u.update(id, func(user *models.User) {
		user.MatchHistory = append(user.MatchHistory, matchID)
	})
}

type memQueue struct{ *memRepos }

func (q *memQueue) Insert(ctx context.Context, entry *models.QueueEntry) error {
	return q.with(func(st *memState) error {
		if _, ok := st.queue[entry.PlayerID]; ok {
			return fmt.Errorf("player %s: %w", entry.PlayerID, ErrDuplicate)
		}
		st.queue[entry.PlayerID] = *entry
		return nil
	})
}

func (q *memQueue) DeleteByPlayer(ctx context.Context, playerID string) (bool, error) {
	var deleted bool
	err := q.with(func(st *memState) error {
		_, deleted = st.queue[playerID]
		delete(st.queue, playerID)
		return nil
	})
	return deleted, err
}

func (q *memQueue) DeleteEntry(ctx context.Context, playerID, entryID string) (bool, error) {
	var deleted bool
	err := q.with(func(st *memState) error {
		entry, ok := st.queue[playerID]
		if !ok || entry.ID != entryID {
			return nil
		}
		delete(st.queue, playerID)
		deleted = true
		return nil
	})
	return deleted, err
}

func (q *memQueue) FindByPlayer(ctx context.Context, playerID string) (*models.QueueEntry, error) {
	var out *models.QueueEntry
	err := q.with(func(st *memState) error {
		if entry, ok := st.queue[playerID]; ok {
			out = &entry
		}
		return nil
	})
	return out, err
}

func sortFIFO(entries []models.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].JoinedAt.Before(entries[j].JoinedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}

func (q *memQueue) GroupByRegion(ctx context.Context, mode string) (map[string][]models.QueueEntry, error) {
	groups := make(map[string][]models.QueueEntry)
	err := q.with(func(st *memState) error {
		for _, entry := range st.queue {
			if entry.Mode == mode {
				groups[entry.Region] = append(groups[entry.Region], entry)
			}
		}
		return nil
	})
	for _, entries := range groups {
		sortFIFO(entries)
	}
	return groups, err
}

func (q *memQueue) Stats(ctx context.Context) ([]models.QueueStats, error) {
	type bucket struct{ region, mode string }
	agg := make(map[bucket]*models.QueueStats)
	sums := make(map[bucket]int)

	err := q.with(func(st *memState) error {
		for _, entry := range st.queue {
			key := bucket{entry.Region, entry.Mode}
			s, ok := agg[key]
			if !ok {
				s = &models.QueueStats{Region: entry.Region, Mode: entry.Mode, OldestJoinTime: entry.JoinedAt}
				agg[key] = s
			}
			s.Count++
			sums[key] += entry.Rating
			if entry.JoinedAt.Before(s.OldestJoinTime) {
				s.OldestJoinTime = entry.JoinedAt
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats := make([]models.QueueStats, 0, len(agg))
	for key, s := range agg {
		s.AvgRating = float64(sums[key]) / float64(s.Count)
		stats = append(stats, *s)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Region != stats[j].Region {
			return stats[i].Region < stats[j].Region
		}
		return stats[i].Mode < stats[j].Mode
	})
	return stats, nil
}

type memMatches struct{ *memRepos }

func (m *memMatches) Insert(ctx context.Context, match *models.Match) error {
	return m.with(func(st *memState) error {
		if _, ok := st.matches[match.ID]; ok {
			return fmt.Errorf("match %s: %w", match.ID, ErrDuplicate)
		}
		st.matches[match.ID] = copyMatch(match)
		st.matchOrder = append(st.matchOrder, match.ID)
		return nil
	})
}

func (m *memMatches) FindByID(ctx context.Context, id string) (*models.Match, error) {
	var out *models.Match
	err := m.with(func(st *memState) error {
		if match, ok := st.matches[id]; ok {
			out = copyMatch(match)
		}
		return nil
	})
	return out, err
}

// FindByIDForUpdate 메모리 트랜잭션은 이미 직렬화되어 있으므로 FindByID와 같다
func (m *memMatches) FindByIDForUpdate(ctx context.Context, id string) (*models.Match, error) {
	return m.FindByID(ctx, id)
}

func (m *memMatches) TransitionStatus(
	ctx context.Context,
	id string,
	from []models.MatchStatus,
	to models.MatchStatus,
	at time.Time,
) (bool, error) {
	var applied bool
	err := m.with(func(st *memState) error {
		match, ok := st.matches[id]
		if !ok {
			return nil
		}
		for _, s := range from {
			if match.Status == s {
				applied = true
				break
			}
		}
		if !applied {
			return nil
		}
		match.Status = to
		ts := at
		switch to {
		case models.MatchStatusActive:
			match.StartedAt = &ts
		case models.MatchStatusFinished, models.MatchStatusCancelled:
			match.EndedAt = &ts
		}
		return nil
	})
	return applied, err
}

func (m *memMatches) Finish(ctx context.Context, id, winnerID string, result models.MatchResult, at time.Time) (bool, error) {
	var applied bool
	err := m.with(func(st *memState) error {
		match, ok := st.matches[id]
		if !ok || match.Status != models.MatchStatusActive || match.WinnerID != nil {
			return nil
		}
		w, r, ts := winnerID, result, at
		match.Status = models.MatchStatusFinished
		match.WinnerID = &w
		match.Result = &r
		match.EndedAt = &ts
		applied = true
		return nil
	})
	return applied, err
}

// newestFirst 생성 시각 역순, 같으면 나중에 넣은 것이 먼저
func (st *memState) newestFirst(keep func(*models.Match) bool) []*models.Match {
	out := []*models.Match{}
	for i := len(st.matchOrder) - 1; i >= 0; i-- {
		match := st.matches[st.matchOrder[i]]
		if keep == nil || keep(match) {
			out = append(out, copyMatch(match))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memMatches) List(ctx context.Context, limit, offset int) ([]*models.Match, error) {
	var out []*models.Match
	err := m.with(func(st *memState) error {
		all := st.newestFirst(nil)
		if offset >= len(all) {
			out = []*models.Match{}
			return nil
		}
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		out = all[offset:end]
		return nil
	})
	return out, err
}

func (m *memMatches) Count(ctx context.Context) (int, error) {
	var n int
	err := m.with(func(st *memState) error {
		n = len(st.matches)
		return nil
	})
	return n, err
}

func (m *memMatches) ListByStatus(ctx context.Context, status models.MatchStatus) ([]*models.Match, error) {
	var out []*models.Match
	err := m.with(func(st *memState) error {
		out = st.newestFirst(func(match *models.Match) bool { return match.Status == status })
		return nil
	})
	return out, err
}

func (m *memMatches) ListFinishedByPlayer(ctx context.Context, playerID string, limit int) ([]*models.Match, error) {
	var out []*models.Match
	err := m.with(func(st *memState) error {
		out = st.newestFirst(func(match *models.Match) bool {
			return match.Status == models.MatchStatusFinished && match.HasPlayer(playerID)
		})
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}
