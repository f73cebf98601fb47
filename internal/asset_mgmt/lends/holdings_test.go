package lends

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func rec(user, group string, a Action, at time.Time) LendRecord {
	return LendRecord{UserID: user, GroupKey: group, AssetDescription: group, Action: a, OccurredAt: at}
}

func TestOutstandingHoldings(t *testing.T) {
	at := func(m int) time.Time { return t0.Add(time.Duration(m) * time.Minute) }
	records := []LendRecord{
		rec("bob", "Scope", ActionLend, at(5)),
		rec("alice", "Scope", ActionLend, at(1)),
		rec("alice", "Scope", ActionLend, at(2)),
		rec("alice", "Scope", ActionReturn, at(3)),
		rec("alice", "Caliper", ActionLend, at(4)),
		rec("alice", "Caliper", ActionReturn, at(6)),
	}

	got := OutstandingHoldings(records)
	assert.Equal(t, []Holding{
		{UserID: "alice", GroupKey: "Scope", AssetDescription: "Scope", Count: 1},
		{UserID: "bob", GroupKey: "Scope", AssetDescription: "Scope", Count: 1},
	}, got)
}

func TestOutstandingHoldings_FloorsAtZero(t *testing.T) {
	records := []LendRecord{
		rec("alice", "Scope", ActionReturn, t0),
		rec("alice", "Scope", ActionReturn, t0.Add(time.Minute)),
		rec("alice", "Scope", ActionLend, t0.Add(2*time.Minute)),
	}
	got := OutstandingHoldings(records)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Count)
}

func TestOutstandingHoldings_EqualTimestampsLendFirst(t *testing.T) {
	// 同時刻の return が先に来ても lend を先に数える
	records := []LendRecord{
		rec("alice", "Scope", ActionReturn, t0),
		rec("alice", "Scope", ActionLend, t0),
	}
	assert.Empty(t, OutstandingHoldings(records))
}

func TestOutstandingHoldings_Empty(t *testing.T) {
	assert.Empty(t, OutstandingHoldings(nil))
}

func TestOutstandingHoldings_ShuffleInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(t, "n")
		records := make([]LendRecord, 0, n)
		for i := range n {
			user := rapid.SampledFrom([]string{"u1", "u2"}).Draw(t, fmt.Sprintf("user%d", i))
			group := rapid.SampledFrom([]string{"Scope", "Caliper"}).Draw(t, fmt.Sprintf("group%d", i))
			action := rapid.SampledFrom([]Action{ActionLend, ActionReturn}).Draw(t, fmt.Sprintf("action%d", i))
			// 同時刻が頻発するよう時刻の幅を狭くする
			minute := rapid.IntRange(0, 4).Draw(t, fmt.Sprintf("minute%d", i))
			records = append(records, rec(user, group, action, t0.Add(time.Duration(minute)*time.Minute)))
		}
		shuffled := rapid.Permutation(records).Draw(t, "shuffled")

		want := OutstandingHoldings(records)
		got := OutstandingHoldings(shuffled)
		require.Equal(t, want, got)
		for _, h := range got {
			require.Positive(t, h.Count)
		}
	})
}
