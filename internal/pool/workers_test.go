package pool

import "testing"

func TestWorkersResolve(t *testing.T) {
	t.Cleanup(SetCPUCountFn(func() int { return 8 }))

	tests := []struct {
		name string
		w    Workers
		jobs int
		want int
	}{
		{"all", AllCPUs(), 100, 8},
		{"half", HalfCPUs(), 100, 4},
		{"zero value", Workers{}, 100, 4},
		{"fraction", Fraction(0.5), 100, 2},
		{"small fraction floors at 1", Fraction(0.1), 100, 1},
		{"fixed", Fixed(3), 100, 3},
		{"fixed above cpus", Fixed(20), 100, 20},
		{"negative offset", Fixed(-1), 100, 3},
		{"large negative offset", Fixed(-10), 100, 1},
		{"clamped to jobs", Fixed(8), 3, 3},
		{"all clamped to jobs", AllCPUs(), 2, 2},
		{"no jobs", AllCPUs(), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Resolve(tt.jobs); got != tt.want {
				t.Fatalf("Resolve(%d) = %d, want %d", tt.jobs, got, tt.want)
			}
		})
	}
}

func TestWorkersResolveShell(t *testing.T) {
	t.Cleanup(SetCPUCountFn(func() int { return 8 }))

	tests := []struct {
		name string
		w    Workers
		jobs int
		want int
	}{
		{"half", HalfCPUs(), 100, 4},
		{"all", AllCPUs(), 100, 8},
		{"negative offset", Fixed(-1), 100, 3},
		{"large negative offset", Fixed(-10), 100, 1},
		{"fraction", Fraction(0.5), 100, 2},
		{"small fraction", Fraction(0.1), 100, 1},
		{"above cpu count falls back to half", Fixed(20), 100, 4},
		{"exact cpu count", Fixed(8), 100, 8},
		{"clamped to jobs", Fixed(8), 3, 3},
		{"one job", HalfCPUs(), 1, 1},
		{"no jobs", HalfCPUs(), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.ResolveShell(tt.jobs); got != tt.want {
				t.Fatalf("ResolveShell(%d) = %d, want %d", tt.jobs, got, tt.want)
			}
		})
	}
}

func TestWorkersResolveSingleCPU(t *testing.T) {
	t.Cleanup(SetCPUCountFn(func() int { return 1 }))

	if got := HalfCPUs().Resolve(10); got != 1 {
		t.Fatalf("Resolve = %d, want 1", got)
	}
	if got := HalfCPUs().ResolveShell(10); got != 1 {
		t.Fatalf("ResolveShell = %d, want 1", got)
	}
}

func TestWorkersReadCPUCountEachCall(t *testing.T) {
	cpus := 4
	t.Cleanup(SetCPUCountFn(func() int { return cpus }))

	if got := AllCPUs().Resolve(100); got != 4 {
		t.Fatalf("Resolve = %d, want 4", got)
	}
	cpus = 16
	if got := AllCPUs().Resolve(100); got != 16 {
		t.Fatalf("Resolve after change = %d, want 16", got)
	}
}

func TestParseWorkers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "half"},
		{"half", "half"},
		{"0", "half"},
		{" ALL ", "all"},
		{"none", "all"},
		{"0.25", "0.25"},
		{"-2", "-2"},
		{"6", "6"},
	}
	for _, tt := range tests {
		w, err := ParseWorkers(tt.in)
		if err != nil {
			t.Fatalf("ParseWorkers(%q) error: %v", tt.in, err)
		}
		if w.String() != tt.want {
			t.Errorf("ParseWorkers(%q) = %s, want %s", tt.in, w, tt.want)
		}
	}

	for _, bad := range []string{"many", "1.5", "-0.5", "0.0"} {
		if _, err := ParseWorkers(bad); err == nil {
			t.Errorf("ParseWorkers(%q) should fail", bad)
		}
	}
}

func TestCPUCountNeverBelowOne(t *testing.T) {
	t.Cleanup(SetCPUCountFn(func() int { return 0 }))
	if got := CPUCount(); got != 1 {
		t.Fatalf("CPUCount = %d, want 1", got)
	}
}

func TestDefaultCPUCount(t *testing.T) {
	if got := defaultCPUCount(); got < 1 {
		t.Fatalf("defaultCPUCount = %d", got)
	}
}
