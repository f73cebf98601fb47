package lends

import (
	"slices"
	"sort"
)

type Holding struct {
	UserID           string `json:"user_id"`
	GroupKey         string `json:"group_key"`
	AssetDescription string `json:"asset_description"`
	Count            int    `json:"count"`
}

type holdingKey struct{ user, group string }

// OutstandingHoldings はログを occurred_at 順に畳み込み、(利用者, グループ) ごとの未返却数を返す。
// 同時刻は lend を return より先に数える。残高は 0 未満にならない。
// 結果は user_id, group_key の昇順。
func OutstandingHoldings(records []LendRecord) []Holding {
	sorted := slices.Clone(records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		return actionRank(a.Action) < actionRank(b.Action)
	})

	balance := map[holdingKey]int{}
	desc := map[holdingKey]string{}
	for _, r := range sorted {
		k := holdingKey{user: r.UserID, group: r.GroupKey}
		switch r.Action {
		case ActionLend:
			balance[k]++
			if _, ok := desc[k]; !ok {
				desc[k] = r.AssetDescription
			}
		case ActionReturn:
			if balance[k] > 0 {
				balance[k]--
			}
		}
	}

	out := make([]Holding, 0, len(balance))
	for k, n := range balance {
		if n <= 0 {
			continue
		}
		out = append(out, Holding{UserID: k.user, GroupKey: k.group, AssetDescription: desc[k], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].GroupKey < out[j].GroupKey
	})
	return out
}

func actionRank(a Action) int {
	if a == ActionLend {
		return 0
	}
	return 1
}
