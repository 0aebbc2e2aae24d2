package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"strategylab/internal/domain"
)

// stubStrategy emits a scripted signal per Update call.
type stubStrategy struct {
	name    string
	signals []domain.Signal
	calls   int
	seen    []int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Update(bars []domain.Bar) {
	s.seen = append(s.seen, len(bars))
	s.calls++
}

func (s *stubStrategy) Next() domain.Signal {
	if s.calls == 0 || s.calls > len(s.signals) {
		return domain.SignalHold
	}
	return s.signals[s.calls-1]
}

func stubFactory(name string) Factory {
	return func(Params) (Strategy, error) { return &stubStrategy{name: name}, nil }
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("test-strategy", stubFactory("test-strategy"))

	f, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	s, err := f(nil)
	if err != nil {
		t.Fatalf("factory returned error: %v", err)
	}
	if s.Name() != "test-strategy" {
		t.Errorf("factory built strategy with Name() = %q, want %q", s.Name(), "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}

	_, err := r.New("nonexistent", nil)
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("New(nonexistent) error = %v, want ErrInvalidConfig", err)
	}
}

func TestRegistryNewReturnsFreshInstances(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", stubFactory("stub"))

	a, _ := r.New("stub", nil)
	b, _ := r.New("stub", nil)
	if a == b {
		t.Error("New returned the same instance twice")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", stubFactory("beta"))
	r.Register("alpha", stubFactory("alpha"))

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func TestParamsGet(t *testing.T) {
	p := Params{"window": 10}
	if got := p.Get("window", 20); got != 10 {
		t.Errorf("Get(window) = %v, want 10", got)
	}
	if got := p.Get("width", 2); got != 2 {
		t.Errorf("Get(width) = %v, want default 2", got)
	}
	var nilParams Params
	if got := nilParams.Get("x", 3); got != 3 {
		t.Errorf("nil Params Get = %v, want 3", got)
	}
}

// closeBars builds daily bars where high = low = close.
func closeBars(closes ...float64) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: "TEST", Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func TestParamsInt(t *testing.T) {
	p := Params{"window": 20, "half": 2.5, "nan": math.NaN()}

	if got, err := p.Int("window", 5); err != nil || got != 20 {
		t.Errorf("Int(window) = %d, %v", got, err)
	}
	if got, err := p.Int("missing", 5); err != nil || got != 5 {
		t.Errorf("Int(missing) = %d, %v", got, err)
	}
	for _, key := range []string{"half", "nan"} {
		if _, err := p.Int(key, 5); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Errorf("Int(%s) err = %v, want ErrInvalidConfig", key, err)
		}
	}
	if _, err := p.Float("nan", 1); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Float(nan) err = %v", err)
	}
	if got, err := p.Float("half", 1); err != nil || got != 2.5 {
		t.Errorf("Float(half) = %g, %v", got, err)
	}
}
