package split

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/pubcaster/internal/model"
)

// fakeLookup はテスト用のProfileLookup。
type fakeLookup struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	fail     map[string]bool
	calls    map[string]int
}

func newFakeLookup(profiles ...*model.Profile) *fakeLookup {
	f := &fakeLookup{
		profiles: make(map[string]*model.Profile),
		fail:     make(map[string]bool),
		calls:    make(map[string]int),
	}
	for _, p := range profiles {
		f.profiles[p.Pubkey] = p
	}
	return f
}

func (f *fakeLookup) FetchProfile(_ context.Context, pubkey string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[pubkey]++
	if f.fail[pubkey] {
		return nil, errors.New("relay timeout")
	}
	return f.profiles[pubkey], nil
}

type countingRecorder struct{ n atomic.Int32 }

func (c *countingRecorder) RecordProfileLookupFailure() { c.n.Add(1) }

func zap(key string, weight float64) model.ZapSplit {
	return model.ZapSplit{Pubkey: key, Weight: weight}
}

func percentages(splits []model.ValueSplit) []int {
	out := make([]int, len(splits))
	for i, s := range splits {
		out[i] = s.Percentage
	}
	return out
}

func TestPercentages_WeightedRoundsIndependently(t *testing.T) {
	got := Percentages([]model.ZapSplit{zap("a", 1), zap("b", 1), zap("c", 1)})
	assert.Equal(t, []int{33, 33, 33}, percentages(got))
}

func TestPercentages_TwoToOne(t *testing.T) {
	got := Percentages([]model.ZapSplit{zap("p1", 2), zap("p2", 1)})
	assert.Equal(t, []int{67, 33}, percentages(got))
	assert.Equal(t, "p1", got[0].Pubkey)
	assert.Equal(t, "p2", got[1].Pubkey)
}

func TestPercentages_CanExceedHundred(t *testing.T) {
	// 1/6ずつ: 16.67 → 17 が6人で102
	zaps := make([]model.ZapSplit, 6)
	for i := range zaps {
		zaps[i] = zap(fmt.Sprintf("k%d", i), 1)
	}
	sum := 0
	for _, p := range percentages(Percentages(zaps)) {
		sum += p
	}
	assert.Equal(t, 102, sum)
}

func TestPercentages_Empty(t *testing.T) {
	assert.Nil(t, Percentages(nil))
}

func TestEqualShares_SumsToHundred(t *testing.T) {
	for n := 1; n <= 30; n++ {
		keys := make([]string, n)
		for i := range keys {
			keys[i] = fmt.Sprintf("k%d", i)
		}
		got := EqualShares(keys)
		require.Len(t, got, n)

		sum := 0
		for _, s := range got {
			sum += s.Percentage
		}
		assert.Equal(t, 100, sum, "n=%d", n)
		assert.Equal(t, 100/n+100%n, got[0].Percentage, "n=%d", n)
	}
}

func TestEqualShares_RemainderToFirst(t *testing.T) {
	got := EqualShares([]string{"a", "b", "c"})
	assert.Equal(t, []int{34, 33, 33}, percentages(got))
}

func TestResolve_ArticleZapsOverridePostZaps(t *testing.T) {
	lookup := newFakeLookup(
		&model.Profile{Pubkey: "p1", Name: "One", LUD16: "one@ln.example"},
		&model.Profile{Pubkey: "p2", NodeID: "03abcdef"},
	)
	r := NewResolver(lookup, nil, 4, nil)
	owner := &model.Profile{Pubkey: "owner", LUD16: "owner@ln.example"}

	article := &model.Article{ID: "a1", ZapSplits: []model.ZapSplit{zap("p1", 2), zap("p2", 1)}}
	got := r.Resolve(context.Background(), owner, []Request{{
		Article: article,
		Zaps:    []model.ZapSplit{zap("p3", 1)},
	}})

	require.Len(t, got, 1)
	require.Len(t, got[0], 2)
	assert.Equal(t, model.ValueSplit{Pubkey: "p1", Percentage: 67, LightningAddress: "one@ln.example", Name: "One"}, got[0][0])
	assert.Equal(t, model.ValueSplit{Pubkey: "p2", Percentage: 33, NodeID: "03abcdef"}, got[0][1])
	assert.Equal(t, model.PaymentMethodNode, got[0][1].Method())
	assert.Zero(t, lookup.calls["p3"])
}

func TestResolve_PostZapsWhenArticleHasNone(t *testing.T) {
	lookup := newFakeLookup(&model.Profile{Pubkey: "p3", LUD16: "three@ln.example"})
	r := NewResolver(lookup, nil, 4, nil)

	got := r.Resolve(context.Background(), &model.Profile{Pubkey: "owner"}, []Request{{
		Article: &model.Article{ID: "a1"},
		Zaps:    []model.ZapSplit{zap("p3", 5)},
	}})

	require.Len(t, got[0], 1)
	assert.Equal(t, 100, got[0][0].Percentage)
	assert.Equal(t, "three@ln.example", got[0][0].Address())
}

func TestResolve_OwnerDefault(t *testing.T) {
	r := NewResolver(newFakeLookup(), nil, 4, nil)
	owner := &model.Profile{Pubkey: "alice", Name: "Alice", LUD16: "alice@ln.example"}

	got := r.Resolve(context.Background(), owner, []Request{{}})

	require.Len(t, got[0], 1)
	s := got[0][0]
	assert.Equal(t, "alice", s.Pubkey)
	assert.Equal(t, 100, s.Percentage)
	assert.Equal(t, model.PaymentMethodLNAddress, s.Method())
	assert.Equal(t, "alice@ln.example", s.Address())
}

func TestResolve_OwnerPrefersNodeID(t *testing.T) {
	r := NewResolver(newFakeLookup(), nil, 4, nil)
	owner := &model.Profile{Pubkey: "alice", LUD16: "alice@ln.example", NodeID: "02node"}

	got := r.Resolve(context.Background(), owner, []Request{{}})

	require.Len(t, got[0], 1)
	assert.Equal(t, model.PaymentMethodNode, got[0][0].Method())
	assert.Equal(t, "02node", got[0][0].Address())
}

func TestResolve_NoPaymentDataGivesNil(t *testing.T) {
	r := NewResolver(newFakeLookup(), nil, 4, nil)

	got := r.Resolve(context.Background(), &model.Profile{Pubkey: "alice"}, []Request{{}})
	assert.Nil(t, got[0])

	got = r.Resolve(context.Background(), nil, []Request{{}})
	assert.Nil(t, got[0])
}

func TestResolve_ActivityParticipantsWithLightningAddress(t *testing.T) {
	lookup := newFakeLookup(
		&model.Profile{Pubkey: "host", LUD16: "host@ln.example"},
		&model.Profile{Pubkey: "guest1", LUD16: "g1@ln.example"},
		&model.Profile{Pubkey: "guest2"},
		&model.Profile{Pubkey: "guest3", LUD16: "g3@ln.example"},
	)
	r := NewResolver(lookup, nil, 2, nil)

	activity := &model.LiveActivity{
		PubKey: "host",
		Participants: []model.Participant{
			{Pubkey: "guest1", Role: "Speaker"},
			{Pubkey: "guest2", Role: "Speaker"},
			{Pubkey: "guest3", Role: "Speaker"},
		},
	}
	got := r.Resolve(context.Background(), &model.Profile{Pubkey: "owner", LUD16: "o@ln.example"}, []Request{{Activity: activity}})

	require.Len(t, got[0], 2)
	assert.Equal(t, "guest1", got[0][0].Pubkey)
	assert.Equal(t, 50, got[0][0].Percentage)
	assert.Equal(t, "g1@ln.example", got[0][0].LightningAddress)
	assert.Equal(t, "guest3", got[0][1].Pubkey)
	assert.Equal(t, 50, got[0][1].Percentage)
}

func TestResolve_ActivityFallsBackToCreator(t *testing.T) {
	lookup := newFakeLookup(
		&model.Profile{Pubkey: "host", Name: "Host", LUD16: "host@ln.example"},
		&model.Profile{Pubkey: "guest"},
	)
	r := NewResolver(lookup, nil, 2, nil)

	activity := &model.LiveActivity{PubKey: "host", Participants: []model.Participant{{Pubkey: "guest"}}}
	got := r.Resolve(context.Background(), &model.Profile{Pubkey: "owner", LUD16: "o@ln.example"}, []Request{{Activity: activity}})

	require.Len(t, got[0], 1)
	assert.Equal(t, model.ValueSplit{Pubkey: "host", Percentage: 100, LightningAddress: "host@ln.example", Name: "Host"}, got[0][0])
}

func TestResolve_ActivityFallsBackToOwner(t *testing.T) {
	r := NewResolver(newFakeLookup(), nil, 2, nil)

	activity := &model.LiveActivity{PubKey: "host"}
	got := r.Resolve(context.Background(), &model.Profile{Pubkey: "owner", LUD16: "o@ln.example"}, []Request{{Activity: activity}})

	require.Len(t, got[0], 1)
	assert.Equal(t, "owner", got[0][0].Pubkey)
}

func TestResolve_LookupFailureDegradesToPlaceholder(t *testing.T) {
	lookup := newFakeLookup(&model.Profile{Pubkey: "p1", LUD16: "one@ln.example"})
	lookup.fail["deadbeefcafe"] = true
	rec := &countingRecorder{}
	r := NewResolver(lookup, rec, 4, nil)

	got := r.Resolve(context.Background(), nil, []Request{{
		Zaps: []model.ZapSplit{zap("p1", 1), zap("deadbeefcafe", 1)},
	}})

	require.Len(t, got[0], 2)
	failed := got[0][1]
	assert.Equal(t, 50, failed.Percentage)
	assert.Equal(t, "recipient@deadbeef.ln", failed.Address())
	assert.Equal(t, "Recipient deadbeef", failed.DisplayName())
	assert.Equal(t, int32(1), rec.n.Load())
}

func TestResolve_OneLookupPerDistinctKey(t *testing.T) {
	lookup := newFakeLookup(&model.Profile{Pubkey: "p1", LUD16: "one@ln.example"})
	r := NewResolver(lookup, nil, 4, nil)

	reqs := []Request{
		{Zaps: []model.ZapSplit{zap("p1", 1)}},
		{Zaps: []model.ZapSplit{zap("p1", 1), zap("owner", 1)}},
		{Article: &model.Article{ZapSplits: []model.ZapSplit{zap("p1", 3)}}},
	}
	owner := &model.Profile{Pubkey: "owner", LUD16: "o@ln.example"}
	got := r.Resolve(context.Background(), owner, reqs)

	require.Len(t, got, 3)
	assert.Equal(t, 1, lookup.calls["p1"])
	assert.Zero(t, lookup.calls["owner"])
	assert.Equal(t, "o@ln.example", got[1][1].LightningAddress)
}
