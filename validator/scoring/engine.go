// Package scoring keeps the per-uid reputation scores as an exponential moving average.
package scoring

import (
	"math"

	"github.com/pkg/errors"
)

// Engine owns the score vector. Scores are indexed by uid, stay in [0,1] and
// the vector only ever grows. Not safe for concurrent use.
type Engine struct {
	alpha  float64
	scores []float64
}

// New creates an engine. initial is copied; values are clamped to [0,1].
func New(alpha float64, initial []float64) (*Engine, error) {
	if !(alpha > 0 && alpha < 1) {
		return nil, errors.Errorf("alpha must be in (0, 1), got %v", alpha)
	}
	scores := make([]float64, len(initial))
	for i, s := range initial {
		scores[i] = clamp(s)
	}
	return &Engine{alpha: alpha, scores: scores}, nil
}

// Alpha returns the smoothing constant.
func (e *Engine) Alpha() float64 {
	return e.alpha
}

// Len returns the vector length.
func (e *Engine) Len() int {
	return len(e.scores)
}

// Score returns the score of uid.
func (e *Engine) Score(uid int) (float64, error) {
	if err := e.check(uid); err != nil {
		return 0, err
	}
	return e.scores[uid], nil
}

// Grow appends zero scores until the vector has size entries. It never shrinks.
// It returns the number of entries added.
func (e *Engine) Grow(size int) int {
	added := 0
	for len(e.scores) < size {
		e.scores = append(e.scores, 0)
		added++
	}
	return added
}

// Decay moves uid toward zero: score = alpha*score.
func (e *Engine) Decay(uid int) error {
	return e.Update(uid, 0)
}

// Update folds a quality signal into uid: score = alpha*score + (1-alpha)*quality.
// quality is clamped to [0,1]; NaN counts as 0.
func (e *Engine) Update(uid int, quality float64) error {
	if err := e.check(uid); err != nil {
		return err
	}
	e.scores[uid] = e.alpha*e.scores[uid] + (1-e.alpha)*clamp(quality)
	return nil
}

// Reset sets uid back to zero, used when a new participant takes over the uid.
func (e *Engine) Reset(uid int) error {
	if err := e.check(uid); err != nil {
		return err
	}
	e.scores[uid] = 0
	return nil
}

// Scores returns a copy of the vector.
func (e *Engine) Scores() []float64 {
	out := make([]float64, len(e.scores))
	copy(out, e.scores)
	return out
}

// Normalize returns the scores scaled to sum to one. The boolean is false when
// every score is zero, in which case there is nothing to submit.
func (e *Engine) Normalize() ([]float64, bool) {
	return Normalize(e.scores)
}

// Normalize scales scores to sum to one.
func Normalize(scores []float64) ([]float64, bool) {
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	out := make([]float64, len(scores))
	if sum <= 0 {
		return out, false
	}
	for i, s := range scores {
		out[i] = s / sum
	}
	return out, true
}

func (e *Engine) check(uid int) error {
	if uid < 0 || uid >= len(e.scores) {
		return errors.Errorf("uid %d out of range (scores: %d)", uid, len(e.scores))
	}
	return nil
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
