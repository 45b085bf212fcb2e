// Package selection samples quiz questions from learning-outcome pools under
// coverage and difficulty-ratio constraints.
package selection

import (
	"sort"

	"quizhub-service/internal/domain"
)

// Ratio is the requested difficulty split in whole percentages.
type Ratio struct {
	Easy   int `json:"easy"`
	Medium int `json:"medium"`
	Hard   int `json:"hard"`
}

// Valid reports whether the ratio is non-negative and sums to exactly 100.
func (r Ratio) Valid() bool {
	if r.Easy < 0 || r.Medium < 0 || r.Hard < 0 {
		return false
	}
	return r.Easy+r.Medium+r.Hard == 100
}

func (r Ratio) percents() [3]int {
	return [3]int{r.Easy, r.Medium, r.Hard}
}

// Request describes one selection.
type Request struct {
	LOIDs  []int64
	Total  int
	Ratio  Ratio
	TypeID *int64
	// Seed makes every shuffle reproducible. Nil draws from a time seed.
	Seed *int64
}

const (
	easy = iota
	medium
	hard
)

// shortfall pools are tried in this order.
var redistributionOrder = []int{medium, easy, hard}

func bucket(level domain.Level) int {
	switch level {
	case domain.LevelEasy:
		return easy
	case domain.LevelHard, domain.LevelExpert:
		return hard
	default:
		return medium
	}
}

// Select draws exactly req.Total questions from pool. Every selected learning
// outcome contributes at least one question; the output order is shuffled.
func Select(pool []domain.Question, req Request) ([]domain.Question, error) {
	if len(req.LOIDs) == 0 {
		return nil, domain.Invalid("lo_ids", "at least one learning outcome is required")
	}
	if req.Total <= 0 {
		return nil, domain.Invalid("total", "must be a positive integer")
	}
	if !req.Ratio.Valid() {
		return nil, domain.ErrInvalidRatio
	}

	rng := newRand(req.Seed)

	los := dedupe(req.LOIDs)
	if len(los) > req.Total {
		rng.Shuffle(len(los), func(i, j int) { los[i], los[j] = los[j], los[i] })
		los = los[:req.Total]
	}

	byLO, union := index(pool, los, req.TypeID)
	budget := apportion(req.Total, req.Ratio.percents())
	picked := make(map[int64]bool, req.Total)
	out := make([]domain.Question, 0, req.Total)

	take := func(q domain.Question) {
		picked[q.ID] = true
		out = append(out, q)
	}

	// coverage
	for _, lo := range los {
		q, lvl, ok := pickCoverage(byLO[lo], budget, picked, rng)
		if !ok {
			return nil, &domain.InsufficientQuestionsError{LOID: lo, Needed: 1}
		}
		take(q)
		budget[lvl]--
	}

	// fill
	remaining := req.Total - len(out)
	for lvl := easy; lvl <= hard && remaining > 0; lvl++ {
		want := budget[lvl]
		if want <= 0 {
			continue
		}
		if want > remaining {
			want = remaining
		}
		for _, q := range draw(union[lvl], picked, want, rng) {
			take(q)
			remaining--
		}
	}

	// shortfall
	for _, lvl := range redistributionOrder {
		if remaining == 0 {
			break
		}
		for _, q := range draw(union[lvl], picked, remaining, rng) {
			take(q)
			remaining--
		}
	}
	if remaining > 0 {
		return nil, &domain.InsufficientQuestionsError{Needed: req.Total, Available: len(out)}
	}

	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:req.Total], nil
}

// DeriveRatio recovers the difficulty ratio present in a question set.
func DeriveRatio(questions []domain.Question) Ratio {
	if len(questions) == 0 {
		return Ratio{Medium: 100}
	}
	var counts [3]int
	for _, q := range questions {
		counts[bucket(q.Level)]++
	}
	pct := apportion(100, counts)
	return Ratio{Easy: pct[easy], Medium: pct[medium], Hard: pct[hard]}
}

// LOIDs returns the distinct learning outcomes of questions, in first-seen order.
func LOIDs(questions []domain.Question) []int64 {
	ids := make([]int64, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.LOID)
	}
	return dedupe(ids)
}

// apportion splits total proportionally to shares using the largest remainder
// method. Levels with a zero share never receive a unit.
func apportion(total int, pct [3]int) [3]int {
	var out, rem [3]int
	sum, assigned := 0, 0
	for _, p := range pct {
		sum += p
	}
	if sum == 0 {
		return out
	}
	for i, p := range pct {
		out[i] = total * p / sum
		rem[i] = total * p % sum
		assigned += out[i]
	}
	for assigned < total {
		best := -1
		for i := range pct {
			if pct[i] == 0 {
				continue
			}
			if best == -1 || rem[i] > rem[best] {
				best = i
			}
		}
		out[best]++
		rem[best] = -1
		assigned++
	}
	return out
}

func index(pool []domain.Question, los []int64, typeID *int64) (map[int64][3][]domain.Question, [3][]domain.Question) {
	wanted := make(map[int64]bool, len(los))
	for _, lo := range los {
		wanted[lo] = true
	}
	sorted := make([]domain.Question, 0, len(pool))
	seen := make(map[int64]bool, len(pool))
	for _, q := range pool {
		if !wanted[q.LOID] || seen[q.ID] {
			continue
		}
		if typeID != nil && q.TypeID != *typeID {
			continue
		}
		seen[q.ID] = true
		sorted = append(sorted, q)
	}
	// seeded draws are only reproducible over a stable input order
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byLO := make(map[int64][3][]domain.Question, len(los))
	var union [3][]domain.Question
	for _, q := range sorted {
		lvl := bucket(q.Level)
		levels := byLO[q.LOID]
		levels[lvl] = append(levels[lvl], q)
		byLO[q.LOID] = levels
		union[lvl] = append(union[lvl], q)
	}
	return byLO, union
}

func pickCoverage(levels [3][]domain.Question, budget [3]int, picked map[int64]bool, rng shuffler) (domain.Question, int, bool) {
	for lvl := easy; lvl <= hard; lvl++ {
		if budget[lvl] <= 0 {
			continue
		}
		if qs := draw(levels[lvl], picked, 1, rng); len(qs) == 1 {
			return qs[0], lvl, true
		}
	}
	for lvl := easy; lvl <= hard; lvl++ {
		if qs := draw(levels[lvl], picked, 1, rng); len(qs) == 1 {
			return qs[0], lvl, true
		}
	}
	return domain.Question{}, 0, false
}

// draw returns up to n unpicked questions from candidates in shuffled order.
func draw(candidates []domain.Question, picked map[int64]bool, n int, rng shuffler) []domain.Question {
	if n <= 0 {
		return nil
	}
	free := make([]domain.Question, 0, len(candidates))
	for _, q := range candidates {
		if !picked[q.ID] {
			free = append(free, q)
		}
	}
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
	if len(free) > n {
		free = free[:n]
	}
	return free
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
