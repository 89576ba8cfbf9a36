// Package archive maintains the multi-objective population of
// accepted candidates: Pareto ranking, novelty, ageing, eviction, and
// the mixture sampling policy that feeds the next generation.
package archive

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Member is one accepted candidate held in the Archive.
type Member struct {
	CandID       string
	MetaPromptID string
	Metrics      map[string]float64
	Rank         int
	Novelty      float64
	Age          int
	CreatedAt    time.Time
}

// Direction records whether a metric is to be maximized or minimized
// for Pareto dominance purposes.
type Direction struct {
	Maximize bool
}

// Archive holds up to Capacity members for one run.
type Archive struct {
	mu              sync.Mutex
	capacity        int
	kNovelty        int
	ageingThreshold int
	directions      map[string]Direction
	members         []Member
	rng             *rand.Rand
	seq             int64 // insertion sequence, for first-appearance tie-breaks
	order           map[string]int64
}

// New creates an empty Archive. seed makes sampling and any tie
// resolution reproducible.
func New(capacity, kNovelty, ageingThreshold int, directions map[string]Direction, seed uint64) *Archive {
	return &Archive{
		capacity:        capacity,
		kNovelty:        kNovelty,
		ageingThreshold: ageingThreshold,
		directions:      directions,
		rng:             rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		order:           make(map[string]int64),
	}
}

// Len returns the current member count.
func (a *Archive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.members)
}

// Members returns a copy of the current archive contents, ordered by
// insertion sequence.
func (a *Archive) Members() []Member {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Member, len(a.members))
	copy(out, a.members)
	return out
}

// Insert adds an accepted candidate to the archive, recomputes Pareto
// ranks and novelty for the whole population, ages existing members,
// and evicts the worst member if the archive is now over capacity.
// It returns the rank assigned to the new member and, if an eviction
// occurred, the evicted member.
func (a *Archive) Insert(m Member) (rank int, evicted *Member, evictedOK bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.members {
		a.members[i].Age++
	}
	m.Age = 0
	a.seq++
	a.order[m.CandID] = a.seq
	a.members = append(a.members, m)

	a.recomputeRanksLocked()
	a.recomputeNoveltyLocked()

	newRank := 0
	for _, mem := range a.members {
		if mem.CandID == m.CandID {
			newRank = mem.Rank
			break
		}
	}

	if len(a.members) > a.capacity {
		idx := a.pickEvictionLocked()
		ev := a.members[idx]
		a.members = append(a.members[:idx], a.members[idx+1:]...)
		return newRank, &ev, true
	}
	return newRank, nil, false
}

func (a *Archive) metricNames() []string {
	names := make([]string, 0, len(a.directions))
	for name := range a.directions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// dominates reports whether x dominates y: no worse on every metric
// and strictly better on at least one, per configured direction.
func (a *Archive) dominates(x, y Member) bool {
	betterSomewhere := false
	for _, name := range a.metricNames() {
		dir := a.directions[name]
		xv, yv := x.Metrics[name], y.Metrics[name]
		if dir.Maximize {
			if xv < yv {
				return false
			}
			if xv > yv {
				betterSomewhere = true
			}
		} else {
			if xv > yv {
				return false
			}
			if xv < yv {
				betterSomewhere = true
			}
		}
	}
	return betterSomewhere
}

// recomputeRanksLocked assigns Pareto ranks by repeated non-dominated
// sorting: rank 0 is the current non-dominated front, then it is
// removed and the process repeats.
func (a *Archive) recomputeRanksLocked() {
	remaining := make([]int, len(a.members))
	for i := range remaining {
		remaining[i] = i
	}

	rank := 0
	for len(remaining) > 0 {
		var front []int
		for _, i := range remaining {
			dominated := false
			for _, j := range remaining {
				if i == j {
					continue
				}
				if a.dominates(a.members[j], a.members[i]) {
					dominated = true
					break
				}
			}
			if !dominated {
				front = append(front, i)
			}
		}
		for _, i := range front {
			a.members[i].Rank = rank
		}
		remaining = subtract(remaining, front)
		rank++
	}
}

func subtract(all, remove []int) []int {
	removeSet := make(map[int]bool, len(remove))
	for _, i := range remove {
		removeSet[i] = true
	}
	var out []int
	for _, i := range all {
		if !removeSet[i] {
			out = append(out, i)
		}
	}
	return out
}

// recomputeNoveltyLocked computes each member's novelty as the mean
// Euclidean distance, over min-max-normalized metrics, to its
// k_novelty nearest neighbours in the archive.
func (a *Archive) recomputeNoveltyLocked() {
	names := a.metricNames()
	n := len(a.members)
	if n == 0 || len(names) == 0 {
		return
	}

	mins := make(map[string]float64, len(names))
	maxs := make(map[string]float64, len(names))
	for i, name := range names {
		for j, mem := range a.members {
			v := mem.Metrics[name]
			if j == 0 {
				mins[name], maxs[name] = v, v
				continue
			}
			if v < mins[name] {
				mins[name] = v
			}
			if v > maxs[name] {
				maxs[name] = v
			}
		}
		_ = i
	}

	normalize := func(mem Member) []float64 {
		out := make([]float64, len(names))
		for i, name := range names {
			span := maxs[name] - mins[name]
			if span == 0 {
				out[i] = 0
				continue
			}
			out[i] = (mem.Metrics[name] - mins[name]) / span
		}
		return out
	}

	vecs := make([][]float64, n)
	for i, mem := range a.members {
		vecs[i] = normalize(mem)
	}

	k := a.kNovelty
	if k <= 0 {
		k = 1
	}

	for i := range a.members {
		dists := make([]float64, 0, n-1)
		for j := range a.members {
			if i == j {
				continue
			}
			dists = append(dists, euclidean(vecs[i], vecs[j]))
		}
		sort.Float64s(dists)
		limit := k
		if limit > len(dists) {
			limit = len(dists)
		}
		if limit == 0 {
			a.members[i].Novelty = 0
			continue
		}
		sum := 0.0
		for _, d := range dists[:limit] {
			sum += d
		}
		a.members[i].Novelty = sum / float64(limit)
	}
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// pickEvictionLocked selects the index of the member to evict:
// eviction candidates are rank>0 members older than ageingThreshold;
// if none qualify, any rank>0 member; if every member is rank 0, the
// whole population. Within the chosen pool, the worst by (highest
// rank, lowest novelty, oldest created_at, cand_id) is evicted.
func (a *Archive) pickEvictionLocked() int {
	var pool []int
	for i, m := range a.members {
		if m.Rank > 0 && m.Age > a.ageingThreshold {
			pool = append(pool, i)
		}
	}
	if len(pool) == 0 {
		for i, m := range a.members {
			if m.Rank > 0 {
				pool = append(pool, i)
			}
		}
	}
	if len(pool) == 0 {
		for i := range a.members {
			pool = append(pool, i)
		}
	}

	sort.Slice(pool, func(x, y int) bool {
		mi, mj := a.members[pool[x]], a.members[pool[y]]
		if mi.Rank != mj.Rank {
			return mi.Rank > mj.Rank
		}
		if mi.Novelty != mj.Novelty {
			return mi.Novelty < mj.Novelty
		}
		if !mi.CreatedAt.Equal(mj.CreatedAt) {
			return mi.CreatedAt.Before(mj.CreatedAt)
		}
		return mi.CandID < mj.CandID
	})
	return pool[0]
}

// Sample draws the next-generation parent mixture: the eliteN lowest
// rank, novelN highest-novelty, and youngN lowest-age members,
// weighted-random without replacement within each category, seeded.
// The three draws are unioned, deduplicated preserving first
// appearance order.
func (a *Archive) Sample(eliteN, novelN, youngN int) []Member {
	a.mu.Lock()
	defer a.mu.Unlock()

	elite := a.weightedDrawLocked(eliteN, func(m Member) float64 { return 1.0 / (1.0 + float64(m.Rank)) })
	novel := a.weightedDrawLocked(novelN, func(m Member) float64 { return m.Novelty + 1e-9 })
	young := a.weightedDrawLocked(youngN, func(m Member) float64 { return 1.0 / (1.0 + float64(m.Age)) })

	seen := make(map[string]bool)
	var out []Member
	for _, group := range [][]Member{elite, novel, young} {
		for _, m := range group {
			if !seen[m.CandID] {
				seen[m.CandID] = true
				out = append(out, m)
			}
		}
	}
	return out
}

func (a *Archive) weightedDrawLocked(n int, weight func(Member) float64) []Member {
	if n <= 0 || len(a.members) == 0 {
		return nil
	}

	pool := make([]Member, len(a.members))
	copy(pool, a.members)
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].CreatedAt.Equal(pool[j].CreatedAt) {
			return pool[i].CandID < pool[j].CandID
		}
		return a.order[pool[i].CandID] < a.order[pool[j].CandID]
	})

	var out []Member
	for len(out) < n && len(pool) > 0 {
		weights := make([]float64, len(pool))
		total := 0.0
		for i, m := range pool {
			w := weight(m)
			if w < 0 {
				w = 0
			}
			weights[i] = w
			total += w
		}
		if total <= 0 {
			out = append(out, pool[0])
			pool = pool[1:]
			continue
		}

		r := a.rng.Float64() * total
		acc := 0.0
		picked := 0
		for i, w := range weights {
			acc += w
			if r <= acc {
				picked = i
				break
			}
		}
		out = append(out, pool[picked])
		pool = append(pool[:picked], pool[picked+1:]...)
	}
	return out
}
