package markov

import (
	"math"
	"testing"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
)

var now = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func TestStateOf(t *testing.T) {
	past := now.AddDate(0, 0, -10)
	recent := now.AddDate(0, 0, -2)
	tests := []struct {
		name string
		task domain.Task
		want State
	}{
		{"completed status", domain.Task{Status: domain.StatusCompleted, PercentComplete: 100}, Completed},
		{"full percent", domain.Task{Status: domain.StatusInProgress, PercentComplete: 100}, Completed},
		{"cancelled", domain.Task{Status: domain.StatusCancelled}, Cancelled},
		{"cancel note", domain.Task{Status: domain.StatusNotStarted, Description: "Cancelled by vendor"}, Cancelled},
		{"blocked status", domain.Task{Status: domain.StatusBlocked, PercentComplete: 30}, Blocked},
		{"under review", domain.Task{Status: domain.StatusUnderReview, PercentComplete: 80}, UnderReview},
		{"stuck at half past due", domain.Task{Status: domain.StatusInProgress, PercentComplete: 50, DueAt: &past}, Blocked},
		{"at half but recent due", domain.Task{Status: domain.StatusInProgress, PercentComplete: 50, DueAt: &recent}, InProgress},
		{"in progress", domain.Task{Status: domain.StatusInProgress, PercentComplete: 10}, InProgress},
		{"assigned unstarted", domain.Task{Status: domain.StatusNotStarted, Assignees: []string{"u1"}}, Planning},
		{"unassigned unstarted", domain.Task{Status: domain.StatusNotStarted}, NotStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StateOf(tt.task, now); got != tt.want {
				t.Errorf("StateOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultMatrixValidates(t *testing.T) {
	if err := Default("bucket:Logistics").Validate(); err != nil {
		t.Fatalf("default matrix invalid: %v", err)
	}
}

func TestValidateRejectsBadRow(t *testing.T) {
	m := Default("x")
	m.Probs[Planning] = map[State]float64{InProgress: 0.5}
	if err := m.Validate(); !errors.IsValidation(err) {
		t.Fatalf("error = %v, want validation", err)
	}
	m = Default("x")
	m.Probs[Blocked] = map[State]float64{InProgress: 1.2, Blocked: -0.2}
	if err := m.Validate(); err == nil {
		t.Fatal("expected error for probability outside [0,1]")
	}
}

func TestExpectedAbsorptionDefaultChain(t *testing.T) {
	abs, err := ExpectedAbsorption(Default("x"))
	if err != nil {
		t.Fatalf("ExpectedAbsorption() error = %v", err)
	}
	// Closed-form solution of the default chain.
	want := map[State]float64{
		NotStarted:  60.0 / 7.0,
		Planning:    1.25 + 165.0/28.0,
		InProgress:  165.0 / 28.0,
		Blocked:     5.0/3.0 + 165.0/28.0,
		UnderReview: 1 + 0.3*165.0/28.0,
	}
	for s, w := range want {
		if got := abs.ExpectedSteps[s]; math.Abs(got-w) > 1e-9 {
			t.Errorf("ExpectedSteps[%s] = %v, want %v", s, got, w)
		}
		if got := abs.ExpectedDays[s]; math.Abs(got-w*abs.StepDays) > 1e-9 {
			t.Errorf("ExpectedDays[%s] = %v, want %v", s, got, w*abs.StepDays)
		}
		if abs.VarianceDays[s] < 0 {
			t.Errorf("VarianceDays[%s] = %v, want >= 0", s, abs.VarianceDays[s])
		}
	}
}

func TestExpectedAbsorptionDeterministicChain(t *testing.T) {
	// Planning -> InProgress -> UnderReview -> Completed, one step each.
	m := &Matrix{
		Context:  "x",
		StepDays: 2,
		Probs: map[State]map[State]float64{
			NotStarted:  {Planning: 1},
			Planning:    {InProgress: 1},
			InProgress:  {UnderReview: 1},
			Blocked:     {InProgress: 1},
			UnderReview: {Completed: 1},
			Completed:   {Completed: 1},
			Cancelled:   {Cancelled: 1},
		},
	}
	abs, err := ExpectedAbsorption(m)
	if err != nil {
		t.Fatalf("ExpectedAbsorption() error = %v", err)
	}
	if got := abs.ExpectedSteps[Planning]; math.Abs(got-3) > 1e-9 {
		t.Errorf("ExpectedSteps[Planning] = %v, want 3", got)
	}
	if got := abs.ExpectedDays[Planning]; math.Abs(got-6) > 1e-9 {
		t.Errorf("ExpectedDays[Planning] = %v, want 6 at 2 days per step", got)
	}
	if got := abs.VarianceDays[Planning]; math.Abs(got) > 1e-9 {
		t.Errorf("VarianceDays[Planning] = %v, want 0 for deterministic chain", got)
	}
}

func TestExpectedAbsorptionSingular(t *testing.T) {
	m := Default("x")
	m.Probs[NotStarted] = map[State]float64{NotStarted: 1} // transient self-trap
	_, err := ExpectedAbsorption(m)
	if err == nil {
		t.Fatal("expected near-singular error")
	}
	if errors.CodeOf(err) != errors.ErrCodeMatrixSingular {
		t.Errorf("code = %v, want %v", errors.CodeOf(err), errors.ErrCodeMatrixSingular)
	}
}

func TestLearn(t *testing.T) {
	obs := []Observation{
		{TaskID: "t1", States: []State{InProgress, InProgress, Completed}},
		{TaskID: "t2", States: []State{InProgress, Blocked, InProgress, Completed}},
	}
	m := Learn("bucket:Program", obs, 1, 0.01)
	if err := m.Validate(); err != nil {
		t.Fatalf("learned matrix invalid: %v", err)
	}

	// InProgress row: counts IP->IP 1, IP->B 1, IP->C 2, smoothed by
	// 0.01 over 7 states.
	total := 4 + 7*0.01
	if got := m.P(InProgress, Completed); math.Abs(got-2.01/total) > 1e-9 {
		t.Errorf("P(InProgress, Completed) = %v, want %v", got, 2.01/total)
	}
	if got := m.P(InProgress, NotStarted); math.Abs(got-0.01/total) > 1e-9 {
		t.Errorf("unseen transition = %v, want smoothed %v", got, 0.01/total)
	}

	// Rows never observed fall back to the default matrix.
	if got := m.P(Planning, InProgress); got != 0.8 {
		t.Errorf("P(Planning, InProgress) = %v, want default 0.8", got)
	}
	// Absorbing rows are self-loops.
	if got := m.P(Completed, Completed); got != 1 {
		t.Errorf("P(Completed, Completed) = %v, want 1", got)
	}
}

func TestLearnAbsorptionFasterThanDefault(t *testing.T) {
	// Heavily forward-biased observations must absorb faster than the
	// default chain.
	var obs []Observation
	for i := 0; i < 10; i++ {
		obs = append(obs, Observation{States: []State{NotStarted, Planning, InProgress, UnderReview, Completed}})
	}
	learned, err := ExpectedAbsorption(Learn("x", obs, 1, 0.01))
	if err != nil {
		t.Fatalf("learned: %v", err)
	}
	def, err := ExpectedAbsorption(Default("x"))
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if learned.ExpectedSteps[NotStarted] >= def.ExpectedSteps[NotStarted] {
		t.Errorf("learned %v >= default %v steps", learned.ExpectedSteps[NotStarted], def.ExpectedSteps[NotStarted])
	}
}

func TestInvert(t *testing.T) {
	inv, err := invert([][]float64{{4, 7}, {2, 6}})
	if err != nil {
		t.Fatalf("invert() error = %v", err)
	}
	want := [][]float64{{0.6, -0.7}, {-0.2, 0.4}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(inv[i][j]-want[i][j]) > 1e-12 {
				t.Errorf("inv[%d][%d] = %v, want %v", i, j, inv[i][j], want[i][j])
			}
		}
	}
	if _, err := invert([][]float64{{1, 1}, {1, 1}}); err == nil {
		t.Error("expected singular error")
	}
}
