// Package metaprompt maintains the co-evolving population of
// instruction templates: seeding, tournament selection, deterministic
// surface mutation, and EMA fitness attribution from downstream
// acceptance outcomes.
package metaprompt

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"
)

// emaAlpha is the exponential-moving-average weight applied to each
// new fitness observation.
const emaAlpha = 0.2

// Template is one instruction template in the pool.
type Template struct {
	ID        string
	Body      string
	ParentIDs []string
	Fitness   float64
	LastUsed  time.Time
	CreatedAt time.Time
}

// builtinSeeds are the initial population members every run starts
// with, before any mutation.
var builtinSeeds = []string{
	"Improve the marked code region to increase the evaluated metrics. Keep the function signature unchanged.",
	"Rewrite the evolve block for clarity and performance. Prefer small, explainable edits over large rewrites.",
	"Identify the single change most likely to improve the lowest-scoring metric, and make only that change.",
	"Propose a structurally different approach to the evolve block, trading familiarity for a shot at a better score.",
}

// Pool is one run's bounded meta-prompt population.
type Pool struct {
	mu              sync.Mutex
	capacity        int
	mutationProb    float64
	selectionTopK   int
	rng             *rand.Rand
	members         []Template
	nextSeedCounter int
}

// New creates a pool seeded with the built-in template set, bounded
// to capacity members. seed makes tournament selection and mutation
// reproducible.
func New(capacity int, mutationProb float64, selectionTopK int, seed uint64, now time.Time) *Pool {
	p := &Pool{
		capacity:      capacity,
		mutationProb:  mutationProb,
		selectionTopK: selectionTopK,
		rng:           rand.New(rand.NewPCG(seed, seed^0xbf58476d1ce4e5b9)),
	}
	for i, body := range builtinSeeds {
		p.members = append(p.members, Template{
			ID:        fmt.Sprintf("seed-%d", i),
			Body:      body,
			CreatedAt: now,
			LastUsed:  now,
		})
	}
	return p
}

// Members returns a copy of the current pool.
func (p *Pool) Members() []Template {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Template, len(p.members))
	copy(out, p.members)
	return out
}

// Sample returns n templates, one per generation slot. Each draw
// tournament-selects a parent from the top selectionTopK members by
// fitness; with probability mutationProb the parent is mutated into
// a new pool member which is returned instead of the parent itself.
// last_used is updated for whichever template is actually returned.
func (p *Pool) Sample(n int, now time.Time) []Template {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Template, 0, n)
	for i := 0; i < n; i++ {
		parent := p.tournamentSelectLocked()
		chosen := parent

		if p.rng.Float64() < p.mutationProb {
			chosen = p.mutateLocked(parent, now)
			p.members = append(p.members, chosen)
			p.evictIfOverCapacityLocked()
		}

		p.touchLocked(chosen.ID, now)
		out = append(out, chosen)
	}
	return out
}

func (p *Pool) touchLocked(id string, now time.Time) {
	for i := range p.members {
		if p.members[i].ID == id {
			p.members[i].LastUsed = now
		}
	}
}

// tournamentSelectLocked restricts the field to the top selectionTopK
// members by fitness, then returns the fitter of two members drawn
// uniformly at random from that field (a 2-way tournament).
func (p *Pool) tournamentSelectLocked() Template {
	field := make([]Template, len(p.members))
	copy(field, p.members)
	sort.Slice(field, func(i, j int) bool { return field[i].Fitness > field[j].Fitness })

	topK := p.selectionTopK
	if topK <= 0 || topK > len(field) {
		topK = len(field)
	}
	field = field[:topK]

	if len(field) == 1 {
		return field[0]
	}

	a := field[p.rng.IntN(len(field))]
	b := field[p.rng.IntN(len(field))]
	if a.Fitness >= b.Fitness {
		return a
	}
	return b
}

// mutateLocked applies one deterministic surface mutation to parent's
// body and returns a new template derived from it.
func (p *Pool) mutateLocked(parent Template, now time.Time) Template {
	kind := p.rng.IntN(3)
	var body string
	switch kind {
	case 0:
		body = insertSentence(parent.Body, p.rng)
	case 1:
		body = deleteSentence(parent.Body, p.rng)
	default:
		body = rewordEmphasis(parent.Body, p.rng)
	}

	p.nextSeedCounter++
	return Template{
		ID:        fmt.Sprintf("mut-%s-%d", parent.ID, p.nextSeedCounter),
		Body:      body,
		ParentIDs: []string{parent.ID},
		CreatedAt: now,
		LastUsed:  now,
	}
}

var insertableSentences = []string{
	"Favor readability over cleverness.",
	"Avoid changing unrelated lines.",
	"Consider edge cases at the boundaries of the input domain.",
}

func insertSentence(body string, rng *rand.Rand) string {
	sentences := splitSentences(body)
	addition := insertableSentences[rng.IntN(len(insertableSentences))]
	pos := rng.IntN(len(sentences) + 1)

	out := make([]string, 0, len(sentences)+1)
	out = append(out, sentences[:pos]...)
	out = append(out, addition)
	out = append(out, sentences[pos:]...)
	return strings.Join(out, " ")
}

func deleteSentence(body string, rng *rand.Rand) string {
	sentences := splitSentences(body)
	if len(sentences) <= 1 {
		return body
	}
	drop := rng.IntN(len(sentences))
	out := append(append([]string{}, sentences[:drop]...), sentences[drop+1:]...)
	return strings.Join(out, " ")
}

var emphasisReplacements = map[string]string{
	"Improve":  "Substantially improve",
	"Rewrite":  "Carefully rewrite",
	"Identify": "Precisely identify",
	"Propose":  "Boldly propose",
}

func rewordEmphasis(body string, rng *rand.Rand) string {
	keys := make([]string, 0, len(emphasisReplacements))
	for k := range emphasisReplacements {
		if strings.Contains(body, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return body
	}
	sort.Strings(keys)
	key := keys[rng.IntN(len(keys))]
	return strings.Replace(body, key, emphasisReplacements[key], 1)
}

func splitSentences(body string) []string {
	parts := strings.Split(body, ". ")
	for i, p := range parts {
		parts[i] = strings.TrimSuffix(strings.TrimSpace(p), ".")
	}
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p+".")
		}
	}
	if len(out) == 0 {
		return []string{body}
	}
	return out
}

// Attribute applies the fitness update for one sampling outcome: a
// candidate produced from templateID that was accepted at
// rankAtInsertion earns 1.0/(1+rank); a rejected or failed candidate
// earns 0. The new observation is folded in as an exponential moving
// average with weight emaAlpha.
func (p *Pool) Attribute(templateID string, accepted bool, rankAtInsertion int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reward := 0.0
	if accepted {
		reward = 1.0 / (1.0 + float64(rankAtInsertion))
	}

	for i := range p.members {
		if p.members[i].ID == templateID {
			p.members[i].Fitness = emaAlpha*reward + (1-emaAlpha)*p.members[i].Fitness
			return
		}
	}
}

// evictIfOverCapacityLocked removes the lowest-fitness, then
// oldest-last_used member while the pool exceeds capacity.
func (p *Pool) evictIfOverCapacityLocked() {
	for len(p.members) > p.capacity {
		worst := 0
		for i := 1; i < len(p.members); i++ {
			if isWorse(p.members[i], p.members[worst]) {
				worst = i
			}
		}
		p.members = append(p.members[:worst], p.members[worst+1:]...)
	}
}

func isWorse(a, b Template) bool {
	if a.Fitness != b.Fitness {
		return a.Fitness < b.Fitness
	}
	return a.LastUsed.Before(b.LastUsed)
}
