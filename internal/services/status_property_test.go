package services

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"

	"github.com/DarshiBhavsar/chat-app-sub000/internal/models"
)

func TestHasUnviewed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOfDistinct(rapid.UintRange(1, 50), rapid.ID[uint]).Draw(t, "ids")
		seen := rapid.SliceOf(rapid.UintRange(1, 50)).Draw(t, "viewed")

		viewed := make(map[uint]struct{}, len(seen))
		for _, id := range seen {
			viewed[id] = struct{}{}
		}

		want := false
		for _, id := range ids {
			if _, ok := viewed[id]; !ok {
				want = true
			}
		}
		if got := hasUnviewed(ids, viewed); got != want {
			t.Fatalf("hasUnviewed(%v, %v) = %v, want %v", ids, seen, got, want)
		}
	})
}

func TestBuildGroup_ViewedFlags(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "n")
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		statuses := make([]models.Status, n)
		viewed := make(map[uint]struct{})
		for i := range statuses {
			statuses[i] = models.Status{
				ID:        uint(i + 1),
				CreatedAt: base.Add(time.Duration(rapid.IntRange(0, 1000).Draw(t, "offset")) * time.Second),
			}
			if rapid.Bool().Draw(t, "viewed") {
				viewed[uint(i+1)] = struct{}{}
			}
		}

		g := buildGroup(models.PublicUser{ID: 7}, statuses, viewed)
		if g.HasUnviewed != (len(viewed) < n) {
			t.Fatalf("HasUnviewed = %v with %d of %d viewed", g.HasUnviewed, len(viewed), n)
		}
		for i, st := range g.Statuses {
			if _, ok := viewed[st.ID]; ok != st.Viewed {
				t.Fatalf("status %d viewed flag = %v", st.ID, st.Viewed)
			}
			if st.CreatedAt.After(g.LatestAt) {
				t.Fatalf("LatestAt %v before status %d", g.LatestAt, st.ID)
			}
			if i > 0 && st.CreatedAt.Before(g.Statuses[i-1].CreatedAt) {
				t.Fatalf("statuses not oldest first at %d", i)
			}
		}
	})
}

func TestProperty_SortGroups(t *testing.T) {
	properties := gopter.NewProperties(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("unviewed groups come first and newer groups lead each half", prop.ForAll(
		func(offsets []int, flags []bool) bool {
			groups := make([]FriendStatusGroup, len(offsets))
			for i, off := range offsets {
				groups[i] = FriendStatusGroup{
					User:        models.PublicUser{ID: uint(i + 1)},
					HasUnviewed: i < len(flags) && flags[i],
					LatestAt:    base.Add(time.Duration(off) * time.Minute),
				}
			}
			sortGroups(groups)

			for i := 1; i < len(groups); i++ {
				prev, cur := groups[i-1], groups[i]
				if !prev.HasUnviewed && cur.HasUnviewed {
					return false
				}
				if prev.HasUnviewed == cur.HasUnviewed && prev.LatestAt.Before(cur.LatestAt) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1440)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
