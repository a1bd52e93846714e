package pool

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"jobswarm/internal/utils"

	"github.com/shirou/gopsutil/v3/cpu"
)

type workersKind int

const (
	kindHalf workersKind = iota
	kindAll
	kindFraction
	kindFixed
)

// Workers is a worker-count directive resolved against the logical CPU
// count at submission time. The zero value means half of the CPUs.
type Workers struct {
	kind     workersKind
	n        int
	fraction float64
}

func AllCPUs() Workers  { return Workers{kind: kindAll} }
func HalfCPUs() Workers { return Workers{kind: kindHalf} }

// Fraction requests f of half the CPUs. f <= 0 is HalfCPUs and f >= 1 is
// Fixed(int(f)).
func Fraction(f float64) Workers {
	switch {
	case f <= 0:
		return HalfCPUs()
	case f >= 1:
		return Fixed(int(f))
	}
	return Workers{kind: kindFraction, fraction: f}
}

// Fixed requests n workers. n == 0 is HalfCPUs; a negative n is an offset
// from half the CPUs.
func Fixed(n int) Workers {
	if n == 0 {
		return HalfCPUs()
	}
	return Workers{kind: kindFixed, n: n}
}

// ParseWorkers accepts "", "all", "half", "0", a fraction such as "0.5", a
// negative offset such as "-2", or a positive count.
func ParseWorkers(s string) (Workers, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "half", "0":
		return HalfCPUs(), nil
	case "all", "none", "max":
		return AllCPUs(), nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return Fixed(n), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return Workers{}, fmt.Errorf("invalid workers directive %q", s)
	}
	if f <= 0 || f >= 1 {
		return Workers{}, fmt.Errorf("invalid workers directive %q: fraction must be in (0,1)", s)
	}
	return Fraction(f), nil
}

func (w Workers) String() string {
	switch w.kind {
	case kindAll:
		return "all"
	case kindFraction:
		return strconv.FormatFloat(w.fraction, 'g', -1, 64)
	case kindFixed:
		return strconv.Itoa(w.n)
	default:
		return "half"
	}
}

// Resolve sizes a pool for the callable runner. The result is at least 1
// and never more than jobs; it is 0 only when jobs is 0.
func (w Workers) Resolve(jobs int) int {
	if jobs <= 0 {
		return 0
	}
	cpus := CPUCount()
	var n int
	switch w.kind {
	case kindAll:
		n = cpus
	case kindFraction:
		n = int(float64(cpus) / 2.0 * w.fraction)
	case kindFixed:
		if w.n < 0 {
			n = cpus/2 + w.n
		} else {
			n = w.n
		}
	default:
		n = cpus / 2
	}
	return clampWorkers(n, jobs)
}

// ResolveShell sizes a pool for the shell runner. Requests above the CPU
// count fall back to half the CPUs.
func (w Workers) ResolveShell(jobs int) int {
	if jobs <= 0 {
		return 0
	}
	cpus := CPUCount()
	var n int
	switch w.kind {
	case kindAll:
		n = cpus
	case kindFraction:
		n = utils.Max(int(float64(cpus/2)*w.fraction), 1)
	case kindFixed:
		if w.n < 0 {
			n = utils.Max(cpus/2+w.n, 1)
		} else {
			n = w.n
		}
	}
	if n == 0 || n > cpus {
		n = cpus / 2
	}
	return clampWorkers(n, jobs)
}

func clampWorkers(n, jobs int) int {
	return utils.Min(utils.Max(n, 1), jobs)
}

var cpuCountFn = defaultCPUCount

func defaultCPUCount() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// CPUCount returns the logical CPU count. It is read on every call.
func CPUCount() int {
	n := cpuCountFn()
	if n < 1 {
		return 1
	}
	return n
}

func SetCPUCountFn(fn func() int) (restore func()) {
	prev := cpuCountFn
	if fn != nil {
		cpuCountFn = fn
	} else {
		cpuCountFn = defaultCPUCount
	}
	return func() { cpuCountFn = prev }
}
