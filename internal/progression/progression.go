// Package progression turns EXP into levels and completion history into streaks.
package progression

import (
	"log/slog"
	"math"
	"time"

	"household-missions/internal/datekey"
)

const (
	baseLevelCost = 100
	levelCostStep = 50

	// MaxLevel caps the curve. Thresholds up to MaxLevel+1 fit in an int without
	// overflow, and no walk moves more than MaxLevel steps.
	MaxLevel = 1_000_000

	// DefaultStreakLookback bounds streak scans when no limit is configured.
	DefaultStreakLookback = 365
)

// State is the progression part of a user.
type State struct {
	TotalExp int `json:"totalExp"`
	Level    int `json:"level"`
}

// RequiredExpForLevel returns the cumulative EXP at which level is reached. Level 1
// is free; reaching level L+1 from L costs 100 + 50*(L-1). The sum is only defined up
// to MaxLevel+1; callers bound level first.
func RequiredExpForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	total := 0
	for l := 1; l < level; l++ {
		total += levelCost(l)
	}
	return total
}

// levelCost is the EXP needed to go from level l to l+1.
func levelCost(l int) int {
	return baseLevelCost + levelCostStep*(l-1)
}

// threshold is RequiredExpForLevel in closed form, 25L² + 25L − 50, for
// 1 <= level <= MaxLevel+1.
func threshold(level int) int {
	if level <= 1 {
		return 0
	}
	return 25*level*level + 25*level - 50
}

func clampLevel(level int) int {
	switch {
	case level < 1:
		return 1
	case level > MaxLevel:
		return MaxLevel
	default:
		return level
	}
}

// LevelForExp corrects a cached level hint against totalExp, walking up then down.
// The walk keeps the next threshold incrementally, so it costs one step per level moved.
func LevelForExp(totalExp, hint int) int {
	level := clampLevel(hint)
	next := threshold(level + 1)
	for level < MaxLevel && totalExp >= next {
		level++
		next += levelCost(level)
	}
	floor := threshold(level)
	for level > 1 && totalExp < floor {
		level--
		floor -= levelCost(level)
	}
	return level
}

// addExp adds gain to total, saturating at math.MaxInt.
func addExp(total, gain int) int {
	if total > math.MaxInt-gain {
		return math.MaxInt
	}
	return total + gain
}

// Engine applies EXP gains.
type Engine struct {
	log *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{log: logger}
}

// ApplyExpGain adds gain to s and walks the level strictly upward. A non-positive gain
// leaves s untouched.
func (e *Engine) ApplyExpGain(s State, gain int) State {
	if gain <= 0 {
		e.log.Info("ignoring non-positive exp gain", slog.Int("gain", gain), slog.Int("total_exp", s.TotalExp))
		return s
	}
	next := State{TotalExp: addExp(s.TotalExp, gain), Level: clampLevel(s.Level)}
	bound := threshold(next.Level + 1)
	for next.Level < MaxLevel && next.TotalExp >= bound {
		next.Level++
		bound += levelCost(next.Level)
	}
	return next
}

// Progress describes where a user stands inside the current level.
type Progress struct {
	State
	LevelFloor   int `json:"levelFloor"`
	NextLevelExp int `json:"nextLevelExp"`
	IntoLevel    int `json:"intoLevel"`
	ToNextLevel  int `json:"toNextLevel"`
}

// ProgressOf derives Progress from s, correcting a stale level first.
func ProgressOf(s State) Progress {
	level := LevelForExp(s.TotalExp, s.Level)
	floor := threshold(level)
	next := threshold(level + 1)
	// Past the top threshold there is nothing left to earn.
	toNext := max(next-s.TotalExp, 0)
	return Progress{
		State:        State{TotalExp: s.TotalExp, Level: level},
		LevelFloor:   floor,
		NextLevelExp: next,
		IntoLevel:    s.TotalExp - floor,
		ToNextLevel:  toNext,
	}
}

// Streak counts consecutive days ending at reference (inclusive) on which
// completedOnDay holds, scanning at most maxLookback days.
func Streak(completedOnDay func(day time.Time) bool, reference time.Time, maxLookback int) int {
	if maxLookback <= 0 {
		maxLookback = DefaultStreakLookback
	}
	day := datekey.Midnight(reference)
	count := 0
	for count < maxLookback && completedOnDay(day) {
		count++
		day = datekey.AddDays(day, -1)
	}
	return count
}
