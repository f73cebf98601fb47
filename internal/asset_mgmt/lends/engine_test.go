package lends

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"
)

var t0 = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(m *memStore) *Engine {
	e := NewEngine(m, zap.NewNop())
	e.clock = &stepClock{t: t0}
	return e
}

func requireCode(t *testing.T, err error, want Code) {
	t.Helper()
	require.Error(t, err)
	var api *APIError
	require.True(t, errors.As(err, &api), "want *APIError, got %T", err)
	assert.Equal(t, want, api.Code)
}

func TestBorrow_OldestFirstThenExhausted(t *testing.T) {
	m := newMemStore()
	m.addUser("alice", false)
	m.addUnit("U-NEW", "Oscilloscope", t0.Add(2*time.Hour))
	m.addUnit("U-OLD", "Oscilloscope", t0)
	e := newTestEngine(m)
	ctx := context.Background()

	out, err := e.Borrow(ctx, "Oscilloscope", "alice")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "U-OLD", out.UnitID)
	assert.NotEmpty(t, out.LendRecordID)

	out, err = e.Borrow(ctx, "Oscilloscope", "alice")
	require.NoError(t, err)
	assert.Equal(t, "U-NEW", out.UnitID)

	_, err = e.Borrow(ctx, "Oscilloscope", "alice")
	requireCode(t, err, CodeNoAvailableUnit)

	st := m.snapshot()
	require.Len(t, st.records, 2)
	assert.Equal(t, ActionLend, st.records[0].Action)
	assert.Equal(t, "U-OLD", st.records[0].UnitID)
	assert.Equal(t, "alice", *m.holderOf("U-OLD"))
}

func TestBorrow_TieBreakByUnitID(t *testing.T) {
	m := newMemStore()
	m.addUser("alice", false)
	m.addUnit("U-B", "Caliper", t0)
	m.addUnit("U-A", "Caliper", t0)
	e := newTestEngine(m)

	out, err := e.Borrow(context.Background(), "Caliper", "alice")
	require.NoError(t, err)
	assert.Equal(t, "U-A", out.UnitID)
}

func TestBorrow_NormalizesGroupKey(t *testing.T) {
	m := newMemStore()
	m.addUser("alice", false)
	m.addUnit("U1", "Digital Multimeter", t0)
	e := newTestEngine(m)

	out, err := e.Borrow(context.Background(), "  Digital \t Multimeter ", "alice")
	require.NoError(t, err)
	assert.Equal(t, "U1", out.UnitID)
	assert.Equal(t, "Digital Multimeter", m.snapshot().records[0].GroupKey)
}

// 照合順序が大文字小文字を無視しても、記録はユニット側のキーで残る。
func TestTransition_RecordsUnitGroupKey(t *testing.T) {
	m := newMemStore()
	m.foldCase = true
	m.addUser("alice", false)
	m.addUnit("U1", "Scope", t0)
	e := newTestEngine(m)
	ctx := context.Background()

	_, err := e.Borrow(ctx, "scope", "alice")
	require.NoError(t, err)
	_, err = e.ReturnUnit(ctx, "SCOPE", "alice")
	require.NoError(t, err)

	st := m.snapshot()
	require.Len(t, st.records, 2)
	for _, r := range st.records {
		assert.Equal(t, "Scope", r.GroupKey)
	}
	assert.Empty(t, OutstandingHoldings(st.records))
	assert.Nil(t, m.holderOf("U1"))
}

func TestBorrow_SkipsScrapped(t *testing.T) {
	m := newMemStore()
	m.addUser("alice", false)
	m.addUnit("U1", "Scope", t0)
	m.addUnit("U2", "Scope", t0.Add(time.Minute))
	m.scrap("U1")
	e := newTestEngine(m)

	out, err := e.Borrow(context.Background(), "Scope", "alice")
	require.NoError(t, err)
	assert.Equal(t, "U2", out.UnitID)

	_, err = e.Borrow(context.Background(), "Scope", "alice")
	requireCode(t, err, CodeNoAvailableUnit)
}

func TestReturnUnit(t *testing.T) {
	m := newMemStore()
	m.addUser("alice", false)
	m.addUser("bob", false)
	m.addUnit("U1", "Scope", t0)
	e := newTestEngine(m)
	ctx := context.Background()

	_, err := e.ReturnUnit(ctx, "Scope", "alice")
	requireCode(t, err, CodeNoHeldUnit)

	lend, err := e.Borrow(ctx, "Scope", "alice")
	require.NoError(t, err)

	// 他人の保持分は返せない
	_, err = e.ReturnUnit(ctx, "Scope", "bob")
	requireCode(t, err, CodeNoHeldUnit)

	ret, err := e.ReturnUnit(ctx, "Scope", "alice")
	require.NoError(t, err)
	assert.Equal(t, lend.UnitID, ret.UnitID)
	assert.NotEqual(t, lend.LendRecordID, ret.LendRecordID)
	assert.Nil(t, m.holderOf("U1"))

	st := m.snapshot()
	require.Len(t, st.records, 2)
	assert.Equal(t, ActionReturn, st.records[1].Action)
	assert.True(t, st.records[1].OccurredAt.After(st.records[0].OccurredAt))
}

func TestTransition_InvalidInput(t *testing.T) {
	m := newMemStore()
	m.addUser("alice", false)
	m.addUser("zoe", true)
	m.addUnit("U1", "Scope", t0)
	e := newTestEngine(m)
	ctx := context.Background()

	cases := []struct {
		name string
		req  TransitionRequest
	}{
		{"blank group", TransitionRequest{GroupKey: "   ", UserID: "alice", Action: ActionLend}},
		{"blank user", TransitionRequest{GroupKey: "Scope", UserID: " ", Action: ActionLend}},
		{"unknown user", TransitionRequest{GroupKey: "Scope", UserID: "ghost", Action: ActionLend}},
		{"suspended user", TransitionRequest{GroupKey: "Scope", UserID: "zoe", Action: ActionLend}},
		{"unknown action", TransitionRequest{GroupKey: "Scope", UserID: "alice", Action: "steal"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Apply(ctx, tc.req)
			requireCode(t, err, CodeInvalidInput)
		})
	}
	assert.Empty(t, m.snapshot().records)
	assert.Nil(t, m.holderOf("U1"))
}

func TestTransition_RollsBackOnAppendFailure(t *testing.T) {
	m := newMemStore()
	m.addUser("alice", false)
	m.addUnit("U1", "Scope", t0)
	m.failAppend = errors.New("disk full")
	e := newTestEngine(m)

	_, err := e.Borrow(context.Background(), "Scope", "alice")
	require.Error(t, err)
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, CodeInternal, FailureOutcome(err).ErrorKind)

	// 保持者の更新も巻き戻る
	assert.Nil(t, m.holderOf("U1"))
	assert.Empty(t, m.snapshot().records)
}

func TestBorrow_ConcurrentCallersNeverShareAUnit(t *testing.T) {
	const units, callers = 3, 24
	m := newMemStore()
	for i := range units {
		m.addUnit(fmt.Sprintf("U%d", i), "Scope", t0.Add(time.Duration(i)*time.Minute))
	}
	for i := range callers {
		m.addUser(fmt.Sprintf("user-%02d", i), false)
	}
	e := newTestEngine(m)

	var (
		mu      sync.Mutex
		won     = map[string]string{}
		refused int
	)
	var g errgroup.Group
	for i := range callers {
		uid := fmt.Sprintf("user-%02d", i)
		g.Go(func() error {
			out, err := e.Borrow(context.Background(), "Scope", uid)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if CodeOf(err) != CodeNoAvailableUnit {
					return err
				}
				refused++
				return nil
			}
			if prev, dup := won[out.UnitID]; dup {
				return fmt.Errorf("unit %s lent to %s and %s", out.UnitID, prev, uid)
			}
			won[out.UnitID] = uid
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, won, units)
	assert.Equal(t, callers-units, refused)
	assert.Len(t, m.snapshot().records, units)
}

// 任意の操作列の後でも、保持者の状態とログから導いた保有数が一致し、
// 貸出中の台数はグループの台数を超えない。
func TestEngine_StateMatchesLogProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := newMemStore()
		users := []string{"u1", "u2", "u3"}
		for _, u := range users {
			m.addUser(u, false)
		}
		groups := []string{"Scope", "Caliper"}
		size := map[string]int{}
		for _, g := range groups {
			size[g] = rapid.IntRange(0, 3).Draw(t, "size_"+g)
			for i := range size[g] {
				m.addUnit(fmt.Sprintf("%s-%d", g, i), g, t0.Add(time.Duration(i)*time.Second))
			}
		}
		e := newTestEngine(m)

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for range steps {
			u := rapid.SampledFrom(users).Draw(t, "user")
			g := rapid.SampledFrom(groups).Draw(t, "group")
			var err error
			if rapid.Bool().Draw(t, "lend") {
				_, err = e.Borrow(context.Background(), g, u)
				if err != nil {
					require.Equal(t, CodeNoAvailableUnit, CodeOf(err))
				}
			} else {
				_, err = e.ReturnUnit(context.Background(), g, u)
				if err != nil {
					require.Equal(t, CodeNoHeldUnit, CodeOf(err))
				}
			}
		}

		st := m.snapshot()
		held := map[holdingKey]int{}
		borrowed := map[string]int{}
		for _, unit := range st.units {
			if unit.CurrentHolder != nil {
				held[holdingKey{user: *unit.CurrentHolder, group: unit.GroupKey}]++
				borrowed[unit.GroupKey]++
			}
		}
		for g, n := range borrowed {
			require.LessOrEqual(t, n, size[g])
		}

		derived := map[holdingKey]int{}
		for _, h := range OutstandingHoldings(st.records) {
			derived[holdingKey{user: h.UserID, group: h.GroupKey}] = h.Count
		}
		require.Equal(t, held, derived)
	})
}
