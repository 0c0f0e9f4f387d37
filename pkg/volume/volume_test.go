package volume

import (
	"math"
	"sync"
	"testing"
)

// TestNew verifies allocation and dimension validation
func TestNew(t *testing.T) {
	v, err := New(4, 5, 6)
	if err != nil {
		t.Fatalf("New(4,5,6) returned error: %v", err)
	}
	if len(v.Data) != 4*5*6 {
		t.Errorf("Expected %d voxels, got %d", 4*5*6, len(v.Data))
	}
	if v.Spacing.X != 1 || v.Spacing.Y != 1 || v.Spacing.Z != 1 {
		t.Errorf("Expected unit spacing, got %+v", v.Spacing)
	}

	for _, dims := range [][3]int{{0, 5, 6}, {4, -1, 6}, {4, 5, 0}} {
		if _, err := New(dims[0], dims[1], dims[2]); err == nil {
			t.Errorf("Expected error for dimensions %v", dims)
		}
	}
}

// TestNewLike verifies that grid metadata propagates to derived volumes
func TestNewLike(t *testing.T) {
	v, _ := New(3, 4, 5)
	v.Spacing = Vec3{X: 0.5, Y: 0.6, Z: 2.5}
	v.Origin = Vec3{X: -10, Y: 3, Z: 7}

	d, err := NewLike(v)
	if err != nil {
		t.Fatalf("NewLike returned error: %v", err)
	}
	if !d.SameGrid(v) {
		t.Errorf("Derived volume has different grid: %dx%dx%d", d.Width, d.Height, d.Depth)
	}
	if d.Spacing != v.Spacing {
		t.Errorf("Expected spacing %+v, got %+v", v.Spacing, d.Spacing)
	}
	if d.Origin != v.Origin {
		t.Errorf("Expected origin %+v, got %+v", v.Origin, d.Origin)
	}
}

// TestIndexRoundTrip verifies the row-major indexing convention
func TestIndexRoundTrip(t *testing.T) {
	v, _ := New(3, 4, 5)
	seen := make(map[int]bool)
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				i := v.Index(x, y, z)
				if i < 0 || i >= len(v.Data) {
					t.Fatalf("Index(%d,%d,%d) = %d out of range", x, y, z, i)
				}
				if seen[i] {
					t.Fatalf("Index(%d,%d,%d) = %d already used", x, y, z, i)
				}
				seen[i] = true
			}
		}
	}

	v.Set(2, 3, 4, 42)
	if got := v.At(2, 3, 4); got != 42 {
		t.Errorf("Expected At(2,3,4)=42, got %f", got)
	}
}

// TestSummarize verifies the descriptive statistics on known data
func TestSummarize(t *testing.T) {
	v, _ := New(2, 2, 1)
	copy(v.Data, []float64{1, 2, 3, 4})

	s := v.Summarize()
	if s.Min != 1 || s.Max != 4 {
		t.Errorf("Expected min=1 max=4, got min=%f max=%f", s.Min, s.Max)
	}
	if math.Abs(s.Mean-2.5) > 1e-12 {
		t.Errorf("Expected mean=2.5, got %f", s.Mean)
	}
}

// TestParallelOverZ verifies that every z plane is visited exactly once
// regardless of worker count
func TestParallelOverZ(t *testing.T) {
	v, _ := New(2, 2, 17)

	for _, workers := range []int{0, 1, 3, 8, 100} {
		visits := make([]int, v.Depth)
		var mu sync.Mutex
		v.ParallelOverZ(workers, func(z0, z1 int) {
			mu.Lock()
			defer mu.Unlock()
			for z := z0; z < z1; z++ {
				visits[z]++
			}
		})
		for z, n := range visits {
			if n != 1 {
				t.Errorf("workers=%d: plane %d visited %d times", workers, z, n)
			}
		}
	}
}
