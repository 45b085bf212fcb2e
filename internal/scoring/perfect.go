package scoring

import "time"

// Perfect bonus amounts.
const (
	PerfectScoreBonus   = 50
	SpeedDemonBonus     = 30
	UnbrokenStreakBonus = 40
	FlawlessBonus       = 100

	SpeedDemonThreshold = 3 * time.Second
)

// Bonus is one end-of-quiz award.
type Bonus struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Summary is a participant's completed quiz, answers in chronological order.
type Summary struct {
	Correct       int
	Total         int
	ResponseTimes []time.Duration
	Outcomes      []bool
}

// PerfectBonuses returns the end-of-quiz bonuses earned by s.
func PerfectBonuses(s Summary) []Bonus {
	bonuses := []Bonus{}
	if s.Total == 0 {
		return bonuses
	}
	if s.Correct == s.Total {
		bonuses = append(bonuses, Bonus{Name: "Perfect Score", Points: PerfectScoreBonus})
	}
	if mean, ok := meanDuration(s.ResponseTimes); ok && mean < SpeedDemonThreshold {
		bonuses = append(bonuses, Bonus{Name: "Speed Demon", Points: SpeedDemonBonus})
	}
	if s.Correct > 0 && len(s.Outcomes) > 0 && !streakBroken(s.Outcomes) {
		bonuses = append(bonuses, Bonus{Name: "Unbroken Streak", Points: UnbrokenStreakBonus})
	}
	// the three bonuses above must all be present
	if len(bonuses) == 3 {
		bonuses = append(bonuses, Bonus{Name: "Flawless Victory", Points: FlawlessBonus})
	}
	return bonuses
}

// SumBonuses adds bonus points.
func SumBonuses(bonuses []Bonus) int {
	total := 0
	for _, b := range bonuses {
		total += b.Points
	}
	return total
}

func meanDuration(ds []time.Duration) (time.Duration, bool) {
	if len(ds) == 0 {
		return 0, false
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds)), true
}

// streakBroken reports a wrong answer following at least one correct one.
func streakBroken(outcomes []bool) bool {
	started := false
	for _, correct := range outcomes {
		if correct {
			started = true
			continue
		}
		if started {
			return true
		}
	}
	return false
}
