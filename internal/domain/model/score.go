package model

// Contribution is one (feature, contribution) pair of an explanation.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"contribution"`
}

// Attempt records one tier the chain tried. Err is nil for the tier that
// produced the result.
type Attempt struct {
	Tier   Tier   `json:"-"`
	Tag    string `json:"tier"`
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
}

// ScoreResult is the outcome of one scoring request. It is built once and
// never mutated; accessors return copies.
type ScoreResult struct {
	gameID      int64
	score       float64
	strategy    string
	level       string
	explanation []Contribution
	attempts    []Attempt
}

// NewScoreResult builds a ScoreResult, clamping score to [0,1].
func NewScoreResult(gameID int64, score float64, strategy string, explanation []Contribution, attempts []Attempt) ScoreResult {
	score = Clamp01(score)
	return ScoreResult{
		gameID:      gameID,
		score:       score,
		strategy:    strategy,
		level:       LevelFor(score),
		explanation: append([]Contribution(nil), explanation...),
		attempts:    append([]Attempt(nil), attempts...),
	}
}

func (r ScoreResult) GameID() int64    { return r.gameID }
func (r ScoreResult) Score() float64   { return r.score }
func (r ScoreResult) Strategy() string { return r.strategy }
func (r ScoreResult) Level() string    { return r.level }

// Explanation returns a copy of the ordered explanation.
func (r ScoreResult) Explanation() []Contribution {
	return append([]Contribution(nil), r.explanation...)
}

// Attempts returns a copy of the tiers tried, in order.
func (r ScoreResult) Attempts() []Attempt {
	return append([]Attempt(nil), r.attempts...)
}

// Score levels.
const (
	LevelExcellent = "excellent"
	LevelVeryGood  = "very_good"
	LevelGood      = "good"
	LevelFair      = "fair"
	LevelPoor      = "poor"
)

// LevelFor maps a [0,1] score onto a descriptive level.
func LevelFor(score float64) string {
	switch {
	case score >= 0.85:
		return LevelExcellent
	case score >= 0.70:
		return LevelVeryGood
	case score >= 0.55:
		return LevelGood
	case score >= 0.40:
		return LevelFair
	default:
		return LevelPoor
	}
}

// Clamp01 bounds x to [0,1]; NaN maps to 0.
func Clamp01(x float64) float64 {
	switch {
	case x != x:
		return 0
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
