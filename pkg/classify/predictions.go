package classify

import (
	"fmt"
	"math"
)

// Prediction is one label and its confidence in [0,1].
type Prediction struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Predictions is the result of one evaluation, in the order the engine
// produced it. It is non-empty whenever evaluation succeeds.
type Predictions []Prediction

// Top returns the entry with the maximal score. Ties go to the entry seen
// first. ok is false for an empty set.
func (p Predictions) Top() (top Prediction, ok bool) {
	if len(p) == 0 {
		return Prediction{}, false
	}
	top = p[0]
	for _, c := range p[1:] {
		if c.Score > top.Score {
			top = c
		}
	}
	return top, true
}

// Map returns the label to score mapping.
func (p Predictions) Map() map[string]float32 {
	m := make(map[string]float32, len(p))
	for _, c := range p {
		if _, dup := m[c.Label]; !dup {
			m[c.Label] = c.Score
		}
	}
	return m
}

// Validate checks the set is non-empty and every score is in [0,1].
func (p Predictions) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPredictions
	}
	for _, c := range p {
		if math.IsNaN(float64(c.Score)) || c.Score < 0 || c.Score > 1 {
			return fmt.Errorf("classify: score %v for %q outside [0,1]", c.Score, c.Label)
		}
	}
	return nil
}

// FormatPrediction renders the status line for a top prediction,
// e.g. "Predictions: cat - 92.00%".
func FormatPrediction(p Prediction) string {
	return fmt.Sprintf("Predictions: %s - %.2f%%", p.Label, float64(p.Score)*100)
}

// FromScores pairs raw model outputs with labels. Scores beyond the label
// list are named "class_N". When any raw value falls outside [0,1] the
// outputs are treated as logits and passed through a softmax.
func FromScores(labels []string, scores []float32) (Predictions, error) {
	if len(scores) == 0 {
		return nil, ErrEmptyPredictions
	}

	probs := scores
	for _, s := range scores {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return nil, fmt.Errorf("classify: non-finite model output %v", s)
		}
		if s < 0 || s > 1 {
			probs = Softmax(scores)
			break
		}
	}

	out := make(Predictions, len(probs))
	for i, s := range probs {
		label := fmt.Sprintf("class_%d", i)
		if i < len(labels) {
			label = labels[i]
		}
		out[i] = Prediction{Label: label, Score: s}
	}
	return out, nil
}

// Softmax returns exp(x_i) / sum(exp(x)), computed stably.
func Softmax(x []float32) []float32 {
	if len(x) == 0 {
		return nil
	}
	max := x[0]
	for _, v := range x[1:] {
		if v > max {
			max = v
		}
	}
	out := make([]float32, len(x))
	var sum float64
	for i, v := range x {
		e := math.Exp(float64(v - max))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
