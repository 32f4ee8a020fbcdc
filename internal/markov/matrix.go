package markov

import (
	"math"

	"github.com/congresstwin/congresstwin/internal/errors"
)

// sumTolerance is the allowed deviation of a row's outgoing
// probability mass from 1.
const sumTolerance = 1e-6

// DefaultSmoothing is the Laplace epsilon applied to unseen
// transitions during learning.
const DefaultSmoothing = 0.01

// Matrix is a sparse transition matrix for one context (for example
// bucket:Registration). Rows of absorbing states are implicit
// self-loops.
type Matrix struct {
	Context string                      `json:"context"`
	Probs   map[State]map[State]float64 `json:"probabilities"`
	// StepDays is the uniform observation interval behind the matrix.
	StepDays float64 `json:"stepDays"`
}

// Default returns the fallback matrix used when a context has no
// learned transitions.
func Default(context string) *Matrix {
	return &Matrix{
		Context:  context,
		StepDays: 1,
		Probs: map[State]map[State]float64{
			NotStarted:  {Planning: 0.7, NotStarted: 0.3},
			Planning:    {InProgress: 0.8, Planning: 0.2},
			InProgress:  {UnderReview: 0.4, Blocked: 0.15, InProgress: 0.45},
			Blocked:     {InProgress: 0.6, Blocked: 0.4},
			UnderReview: {Completed: 0.7, InProgress: 0.3},
			Completed:   {Completed: 1},
			Cancelled:   {Cancelled: 1},
		},
	}
}

// P returns the from → to transition probability.
func (m *Matrix) P(from, to State) float64 {
	return m.Probs[from][to]
}

// Validate checks that every non-absorbing row's outgoing mass sums to
// 1 within tolerance and that no entry leaves [0, 1].
func (m *Matrix) Validate() error {
	for _, from := range States {
		row := m.Probs[from]
		sum := 0.0
		for to, p := range row {
			if p < 0 || p > 1 {
				return errors.Newf(errors.KindValidation, errors.ErrCodeMatrixInvalid,
					"transition %s -> %s has probability %v outside [0,1]", from, to, p)
			}
			sum += p
		}
		if from.Absorbing() {
			continue
		}
		if math.Abs(sum-1) > sumTolerance {
			return errors.Newf(errors.KindValidation, errors.ErrCodeMatrixInvalid,
				"outgoing probabilities of %s sum to %v", from, sum)
		}
	}
	return nil
}

// Observation is one task's state sequence sampled at a uniform step.
type Observation struct {
	TaskID string
	States []State
}

// Learn estimates a matrix from observed sequences: transition counts
// with Laplace smoothing eps over all transient-row targets, then row
// normalization. Rows never observed fall back to the default matrix.
func Learn(context string, obs []Observation, stepDays, eps float64) *Matrix {
	if stepDays <= 0 {
		stepDays = 1
	}
	if eps <= 0 {
		eps = DefaultSmoothing
	}

	counts := make(map[State]map[State]float64, len(States))
	for _, o := range obs {
		for i := 0; i+1 < len(o.States); i++ {
			from, to := o.States[i], o.States[i+1]
			if from.Absorbing() {
				continue
			}
			if counts[from] == nil {
				counts[from] = make(map[State]float64, len(States))
			}
			counts[from][to]++
		}
	}

	def := Default(context)
	m := &Matrix{
		Context:  context,
		StepDays: stepDays,
		Probs:    make(map[State]map[State]float64, len(States)),
	}
	for _, from := range States {
		if from.Absorbing() {
			m.Probs[from] = map[State]float64{from: 1}
			continue
		}
		row := counts[from]
		if len(row) == 0 {
			m.Probs[from] = def.Probs[from]
			continue
		}
		total := 0.0
		for _, to := range States {
			total += row[to] + eps
		}
		out := make(map[State]float64, len(States))
		for _, to := range States {
			out[to] = (row[to] + eps) / total
		}
		m.Probs[from] = out
	}
	return m
}

// Absorption is the expected-time result for every transient state.
type Absorption struct {
	// ExpectedSteps is the mean number of chain steps to absorption.
	ExpectedSteps map[State]float64 `json:"expectedSteps"`
	// ExpectedDays scales steps by the matrix step size.
	ExpectedDays map[State]float64 `json:"expectedDays"`
	// VarianceDays is the variance of the absorption time in days
	// squared, (2N - I)t - t^2 scaled by the step size.
	VarianceDays map[State]float64 `json:"varianceDays"`
	StepDays     float64           `json:"stepDays"`
}

// ExpectedAbsorption computes the fundamental matrix N = (I - Q)^{-1}
// over the transient states and derives expected steps, days and
// variance per starting state. A near-singular I - Q fails with a
// coded error; callers surface it as a diagnostic with NaN values.
func ExpectedAbsorption(m *Matrix) (*Absorption, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var transient []State
	for _, s := range States {
		if !s.Absorbing() {
			transient = append(transient, s)
		}
	}
	n := len(transient)

	iq := make([][]float64, n)
	for i, from := range transient {
		iq[i] = make([]float64, n)
		for j, to := range transient {
			v := -m.P(from, to)
			if i == j {
				v += 1
			}
			iq[i][j] = v
		}
	}

	fund, err := invert(iq)
	if err != nil {
		return nil, err
	}

	// t = N·1, v = (2N - I)t - t∘t.
	t := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			t[i] += fund[i][j]
		}
	}
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			c := 2 * fund[i][j]
			if i == j {
				c -= 1
			}
			v[i] += c * t[j]
		}
		v[i] -= t[i] * t[i]
	}

	step := m.StepDays
	if step <= 0 {
		step = 1
	}
	out := &Absorption{
		ExpectedSteps: make(map[State]float64, n),
		ExpectedDays:  make(map[State]float64, n),
		VarianceDays:  make(map[State]float64, n),
		StepDays:      step,
	}
	for i, s := range transient {
		out.ExpectedSteps[s] = t[i]
		out.ExpectedDays[s] = t[i] * step
		out.VarianceDays[s] = v[i] * step * step
	}
	return out, nil
}
