package montecarlo

import (
	"math"
	"math/rand/v2"

	"github.com/congresstwin/congresstwin/internal/history"
)

// sampler draws Beta-PERT durations from one RNG stream. Each
// simulation run owns its own stream, so concurrent runs never share
// state and a fixed seed reproduces bit-identical output.
type sampler struct {
	rng *rand.Rand
}

func newSampler(seed uint64) *sampler {
	return &sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// PERT draws from Beta-PERT(O, M, P): a Beta(alpha, beta) variate
// scaled onto [O, P] with alpha = 1 + 4(M-O)/(P-O) and
// beta = 1 + 4(P-M)/(P-O). O = P degenerates to a point mass at M.
func (s *sampler) PERT(p history.PERT) float64 {
	span := p.Pessimistic - p.Optimistic
	if span < 1e-9 {
		return p.MostLikely
	}
	alpha := 1 + 4*(p.MostLikely-p.Optimistic)/span
	beta := 1 + 4*(p.Pessimistic-p.MostLikely)/span
	return p.Optimistic + span*s.beta(alpha, beta)
}

func (s *sampler) beta(alpha, beta float64) float64 {
	x := s.gamma(alpha)
	y := s.gamma(beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// gamma draws Gamma(shape, 1) via Marsaglia-Tsang. PERT shapes are
// always >= 1, but the boost for shape < 1 is kept for safety.
func (s *sampler) gamma(shape float64) float64 {
	if shape < 1 {
		u := s.rng.Float64()
		return s.gamma(shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		x := s.rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := s.rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
