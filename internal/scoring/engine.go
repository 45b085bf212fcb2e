// Package scoring computes dynamic per-answer points and end-of-quiz bonuses.
package scoring

import (
	"math"
	"time"

	"quizhub-service/internal/domain"
)

const (
	BaseFirstAttempt = 10
	BaseLaterAttempt = 5

	// StreakMinimum is the run length that unlocks the flat streak bonus.
	StreakMinimum = 3
	StreakBonus   = 2

	// HistoryLimit bounds how many past answers are inspected for a streak.
	HistoryLimit = 20

	EarlyFinishBonus = 5
)

// SpeedTier grants Bonus when the response time is at most Within.
type SpeedTier struct {
	Within time.Duration
	Bonus  int
	Label  string
}

// SpeedTiers are checked in ascending order; the first match wins.
var SpeedTiers = []SpeedTier{
	{Within: 2 * time.Second, Bonus: 15, Label: "Lightning Fast"},
	{Within: 5 * time.Second, Bonus: 10, Label: "Quick Thinker"},
	{Within: 10 * time.Second, Bonus: 5, Label: "Steady"},
	{Within: 20 * time.Second, Bonus: 2, Label: "Made It"},
}

// ComboTier multiplies the total once the streak reaches Streak.
type ComboTier struct {
	Streak     int
	Multiplier float64
	Label      string
}

// ComboTiers ascend by Streak. Only the highest reached tier applies.
var ComboTiers = []ComboTier{
	{Streak: 5, Multiplier: 1.2, Label: "Hot Streak"},
	{Streak: 10, Multiplier: 1.5, Label: "On Fire"},
	{Streak: 15, Multiplier: 2.0, Label: "Unstoppable"},
}

// DifficultyMultipliers by question level.
var DifficultyMultipliers = map[domain.Level]float64{
	domain.LevelEasy:   1.0,
	domain.LevelMedium: 1.2,
	domain.LevelHard:   1.5,
	domain.LevelExpert: 2.0,
}

// DifficultyMultiplier falls back to the medium factor for unknown levels.
func DifficultyMultiplier(level domain.Level) float64 {
	if m, ok := DifficultyMultipliers[level]; ok {
		return m
	}
	return DifficultyMultipliers[domain.LevelMedium]
}

// Event is one answer to score.
type Event struct {
	Correct      bool
	Attempt      int // 1-based
	ResponseTime time.Duration
	Difficulty   domain.Level
	// History holds previous answers of the same user in the same quiz,
	// newest first, excluding this one.
	History []bool
	// QuizDuration and TimeRemaining are zero when unknown.
	QuizDuration  time.Duration
	TimeRemaining time.Duration
}

// StreakInfo describes the run of correct answers ending at this answer.
type StreakInfo struct {
	Length     int     `json:"length"`
	Tier       string  `json:"tier,omitempty"`
	Multiplier float64 `json:"multiplier"`
	NextTier   int     `json:"next_tier,omitempty"`
}

// Breakdown is the scored result of one answer.
type Breakdown struct {
	Base                 int        `json:"base"`
	SpeedBonus           int        `json:"speed_bonus"`
	StreakBonus          int        `json:"streak_bonus"`
	DifficultyMultiplier float64    `json:"difficulty_multiplier"`
	TimeBonus            int        `json:"time_bonus"`
	StreakMultiplier     float64    `json:"streak_multiplier"`
	ClutchFinish         bool       `json:"clutch_finish"`
	Total                int        `json:"total"`
	BonusLabels          []string   `json:"bonus_labels"`
	Streak               StreakInfo `json:"streak_info"`
}

// Scorer scores answer events.
type Scorer interface {
	Score(ev Event) Breakdown
}

// Engine is the default Scorer.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Score computes ((base + speed + streak) × difficulty + time) × combo, rounded.
func (e *Engine) Score(ev Event) Breakdown {
	if !ev.Correct {
		return Breakdown{BonusLabels: []string{}}
	}

	b := Breakdown{
		Base:                 BaseFirstAttempt,
		DifficultyMultiplier: DifficultyMultiplier(ev.Difficulty),
		StreakMultiplier:     1,
		BonusLabels:          []string{},
	}
	if ev.Attempt > 1 {
		b.Base = BaseLaterAttempt
	}

	rt := ev.ResponseTime
	if rt < 0 {
		rt = 0
	}
	for _, tier := range SpeedTiers {
		if rt <= tier.Within {
			b.SpeedBonus = tier.Bonus
			b.BonusLabels = append(b.BonusLabels, tier.Label)
			break
		}
	}

	b.Streak = streakOf(ev.History)
	if b.Streak.Length >= StreakMinimum {
		b.StreakBonus = StreakBonus
		b.BonusLabels = append(b.BonusLabels, "Streak")
	}
	if b.Streak.Tier != "" {
		b.StreakMultiplier = b.Streak.Multiplier
		b.BonusLabels = append(b.BonusLabels, b.Streak.Tier)
	}

	if ev.QuizDuration > 0 && ev.TimeRemaining > 0 {
		switch {
		case ev.TimeRemaining*2 > ev.QuizDuration:
			b.TimeBonus = EarlyFinishBonus
			b.BonusLabels = append(b.BonusLabels, "Early Bird")
		case ev.TimeRemaining*10 <= ev.QuizDuration:
			b.ClutchFinish = true
			b.BonusLabels = append(b.BonusLabels, "Clutch")
		}
	}

	subtotal := float64(b.Base + b.SpeedBonus + b.StreakBonus)
	total := (subtotal*b.DifficultyMultiplier + float64(b.TimeBonus)) * b.StreakMultiplier
	b.Total = int(math.Round(total))
	return b
}

// streakOf counts the current (correct) answer plus the contiguous correct
// prefix of history.
func streakOf(history []bool) StreakInfo {
	length := 1
	for i, correct := range history {
		if i >= HistoryLimit || !correct {
			break
		}
		length++
	}
	info := StreakInfo{Length: length, Multiplier: 1}
	for _, tier := range ComboTiers {
		if length >= tier.Streak {
			info.Tier = tier.Label
			info.Multiplier = tier.Multiplier
			continue
		}
		info.NextTier = tier.Streak
		break
	}
	return info
}
