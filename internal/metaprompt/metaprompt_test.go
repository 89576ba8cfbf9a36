package metaprompt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_SeedsBuiltinTemplates(t *testing.T) {
	p := New(8, 0.0, 4, 1, time.Now())
	require.Len(t, p.Members(), len(builtinSeeds))
}

func TestSample_NoMutationReturnsExistingMember(t *testing.T) {
	p := New(8, 0.0, 4, 1, time.Now())
	before := len(p.Members())
	out := p.Sample(3, time.Now())
	require.Len(t, out, 3)
	require.Equal(t, before, len(p.Members()), "mutation_prob=0 must never grow the pool")
}

func TestSample_AlwaysMutatingGrowsPoolUntilCapacity(t *testing.T) {
	p := New(5, 1.0, 4, 1, time.Now())
	for i := 0; i < 20; i++ {
		p.Sample(1, time.Now())
	}
	require.LessOrEqual(t, len(p.Members()), 5)
}

func TestAttribute_AcceptedRankZeroEarnsFullReward(t *testing.T) {
	p := New(8, 0.0, 4, 1, time.Now())
	id := p.Members()[0].ID
	p.Attribute(id, true, 0)

	for _, m := range p.Members() {
		if m.ID == id {
			require.InDelta(t, 0.2, m.Fitness, 1e-9) // alpha * 1.0 + (1-alpha)*0
		}
	}
}

func TestAttribute_RejectedEarnsZero(t *testing.T) {
	p := New(8, 0.0, 4, 1, time.Now())
	id := p.Members()[0].ID
	p.Attribute(id, true, 0)
	p.Attribute(id, false, 0)

	for _, m := range p.Members() {
		if m.ID == id {
			require.InDelta(t, 0.16, m.Fitness, 1e-9) // 0.2*(1-0.2)
		}
	}
}

func TestEviction_RespectsCapacity(t *testing.T) {
	p := New(4, 1.0, 4, 1, time.Now())
	for i := 0; i < 30; i++ {
		p.Sample(1, time.Now())
	}
	require.LessOrEqual(t, len(p.Members()), 4)
}

func TestSample_Deterministic(t *testing.T) {
	build := func() *Pool { return New(8, 0.5, 4, 99, time.Unix(0, 0)) }
	p1, p2 := build(), build()

	out1 := p1.Sample(5, time.Unix(0, 0))
	out2 := p2.Sample(5, time.Unix(0, 0))

	require.Equal(t, len(out1), len(out2))
	for i := range out1 {
		require.Equal(t, out1[i].Body, out2[i].Body)
	}
}
