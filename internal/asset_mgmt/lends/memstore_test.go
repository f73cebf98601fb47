package lends

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// memStore はテスト用のインメモリ実装。ミューテックスで直列化し、
// 作業コピーに対して fn を実行して成功時だけ差し替える。
type memStore struct {
	mu         sync.Mutex
	st         memState
	failAppend error
	foldCase   bool // 大文字小文字を区別しない照合順序の再現
}

type memUnit struct {
	Unit
	Scrapped bool
}

type memState struct {
	users   map[string]UserRef
	units   []memUnit
	records []LendRecord
}

func (s memState) clone() memState {
	return memState{
		users:   maps.Clone(s.users),
		units:   slices.Clone(s.units),
		records: slices.Clone(s.records),
	}
}

func newMemStore() *memStore {
	return &memStore{st: memState{users: map[string]UserRef{}}}
}

func (m *memStore) addUser(id string, disabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.users[id] = UserRef{ID: id, Role: "user", Disabled: disabled}
}

func (m *memStore) addUnit(id, group string, created time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.units = append(m.st.units, memUnit{Unit: Unit{
		UnitID: id, GroupKey: group, AssetDescription: group, CreatedAt: created,
	}})
}

func (m *memStore) scrap(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.st.units {
		if m.st.units[i].UnitID == id {
			m.st.units[i].Scrapped = true
		}
	}
}

func (m *memStore) holderOf(id string) *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.st.units {
		if u.UnitID == id {
			return u.CurrentHolder
		}
	}
	return nil
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.clone()
}

func (m *memStore) RunAtomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.st.clone()
	if err := fn(ctx, &memTx{st: &work, failAppend: m.failAppend, foldCase: m.foldCase}); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (m *memStore) ListRecords(_ context.Context, f RecordFilter, p Page) ([]LendRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hit []LendRecord
	for _, r := range m.st.records {
		if f.UserID != nil && r.UserID != *f.UserID {
			continue
		}
		if f.GroupKey != nil && r.GroupKey != *f.GroupKey {
			continue
		}
		if f.Action != nil && r.Action != *f.Action {
			continue
		}
		hit = append(hit, r)
	}
	total := int64(len(hit))
	if p.Offset >= len(hit) {
		return []LendRecord{}, total, nil
	}
	end := min(p.Offset+p.Limit, len(hit))
	return hit[p.Offset:end], total, nil
}

func (m *memStore) AllRecords(_ context.Context, userID *string) ([]LendRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LendRecord
	for _, r := range m.st.records {
		if userID == nil || r.UserID == *userID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memTx struct {
	st         *memState
	failAppend error
	foldCase   bool
}

func (t *memTx) keyEq(a, b string) bool {
	if t.foldCase {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func (t *memTx) GetUser(_ context.Context, id string) (*UserRef, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (t *memTx) first(match func(memUnit) bool) *Unit {
	var best *Unit
	for _, u := range t.st.units {
		if u.Scrapped || !match(u) {
			continue
		}
		if best == nil || u.CreatedAt.Before(best.CreatedAt) ||
			(u.CreatedAt.Equal(best.CreatedAt) && u.UnitID < best.UnitID) {
			c := u.Unit
			best = &c
		}
	}
	return best
}

func (t *memTx) FirstAvailableUnit(_ context.Context, group string) (*Unit, error) {
	return t.first(func(u memUnit) bool { return t.keyEq(u.GroupKey, group) && u.CurrentHolder == nil }), nil
}

func (t *memTx) FirstHeldUnit(_ context.Context, group, user string) (*Unit, error) {
	return t.first(func(u memUnit) bool {
		return t.keyEq(u.GroupKey, group) && u.CurrentHolder != nil && *u.CurrentHolder == user
	}), nil
}

func (t *memTx) SwapHolder(_ context.Context, unitID string, from, to *string) (bool, error) {
	for i := range t.st.units {
		u := &t.st.units[i]
		if u.UnitID != unitID || u.Scrapped {
			continue
		}
		if !samePtr(u.CurrentHolder, from) {
			return false, nil
		}
		if to == nil {
			u.CurrentHolder = nil
		} else {
			v := *to
			u.CurrentHolder = &v
		}
		return true, nil
	}
	return false, nil
}

func (t *memTx) AppendRecord(_ context.Context, r *LendRecord) error {
	if t.failAppend != nil {
		return t.failAppend
	}
	t.st.records = append(t.st.records, *r)
	return nil
}

func samePtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// stepClock は呼ばれるたびに1秒進む。
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}
