package sheetness

import (
	"math"
	"testing"

	"krcahbone/pkg/volume"
)

func testFunctor(polarity Polarity) Functor {
	return Functor{Alpha: 0.5, Beta: 0.5, Gamma: 100, Polarity: polarity}
}

// TestResponseSignGate verifies that a dominant eigenvalue with the
// wrong sign for the configured polarity yields exactly zero
func TestResponseSignGate(t *testing.T) {
	bright := testFunctor(EnhanceBright)
	dark := testFunctor(EnhanceDark)

	// A strong plate-like triple, bright variant (dominant negative).
	if r := bright.Response(1, 10, -500); r <= 0 {
		t.Errorf("bright functor on bright plate: got %g, want > 0", r)
	}
	if r := bright.Response(1, 10, 500); r != 0 {
		t.Errorf("bright functor on dark plate: got %g, want exactly 0", r)
	}
	if r := dark.Response(1, 10, 500); r <= 0 {
		t.Errorf("dark functor on dark plate: got %g, want > 0", r)
	}
	if r := dark.Response(1, 10, -500); r != 0 {
		t.Errorf("dark functor on bright plate: got %g, want exactly 0", r)
	}
}

// TestResponseDegenerateTriples verifies that near-zero denominators
// are fully suppressive instead of producing NaN or Inf
func TestResponseDegenerateTriples(t *testing.T) {
	f := testFunctor(EnhanceBright)

	cases := [][3]float64{
		{0, 0, 0},
		{0, 0, -1e-300},
		{0, 0, -5},
		{1e-300, 1e-300, -5},
	}
	for _, c := range cases {
		r := f.Response(c[0], c[1], c[2])
		if math.IsNaN(r) || math.IsInf(r, 0) {
			t.Fatalf("Response(%v) = %g, want a finite value", c, r)
		}
		if r != 0 {
			t.Errorf("Response(%v) = %g, want 0", c, r)
		}
	}
}

// TestResponseFavorsPlates verifies the structure preference: a
// plate-like triple scores higher than a tube-like or blob-like triple
// of the same dominant magnitude
func TestResponseFavorsPlates(t *testing.T) {
	f := testFunctor(EnhanceBright)

	plate := f.Response(1, 5, -100)
	tube := f.Response(2, -95, -100)
	blob := f.Response(-90, -95, -100)

	if plate <= tube {
		t.Errorf("plate response %g should exceed tube response %g", plate, tube)
	}
	if plate <= blob {
		t.Errorf("plate response %g should exceed blob response %g", plate, blob)
	}
}

// TestResponseGammaSuppression verifies that low-magnitude triples are
// suppressed relative to the gamma noise floor
func TestResponseGammaSuppression(t *testing.T) {
	weak := Functor{Alpha: 0.5, Beta: 0.5, Gamma: 1000, Polarity: EnhanceBright}
	strong := Functor{Alpha: 0.5, Beta: 0.5, Gamma: 1, Polarity: EnhanceBright}

	// Same triple, different noise floors.
	if rw, rs := weak.Response(0.1, 1, -10), strong.Response(0.1, 1, -10); rw >= rs {
		t.Errorf("high gamma should suppress: got %g (gamma=1000) vs %g (gamma=1)", rw, rs)
	}
}

// TestApply verifies the bulk evaluation over an eigen field
func TestApply(t *testing.T) {
	mk := func(val float64) *volume.Volume {
		v, _ := volume.New(4, 4, 4)
		for i := range v.Data {
			v.Data[i] = val
		}
		return v
	}
	l1, l2, l3 := mk(1), mk(10), mk(-500)

	f := testFunctor(EnhanceBright)
	out, err := f.Apply(l1, l2, l3, 2)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := f.Response(1, 10, -500)
	for i, got := range out.Data {
		if got != want {
			t.Fatalf("voxel %d: got %g, want %g", i, got, want)
		}
	}
}
