package main

import (
	"go.sazak.io/monoclock/clock"
)

// Budget is a wall-time allowance measured on the process clock.
type Budget struct {
	start float64
	limit float64
}

func NewBudget(seconds float64) Budget {
	return Budget{start: clock.Elapsed(), limit: seconds}
}

// Spent is the time since the budget was created.
func (b Budget) Spent() float64 {
	return clock.Elapsed() - b.start
}

func (b Budget) Remaining() float64 {
	if r := b.limit - b.Spent(); r > 0 {
		return r
	}
	return 0
}

func (b Budget) Exceeded() bool {
	return b.Spent() >= b.limit
}

// workResult is what a run of countPrimes reports back.
type workResult struct {
	Iterations      uint64  `json:"iterations"`
	Primes          uint64  `json:"primes"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	StoppedByBudget bool    `json:"stopped_by_budget"`
}

// countPrimes tests candidates for primality until limit candidates are done
// or the budget runs out. The budget is consulted every slice candidates.
func countPrimes(budget Budget, slice, limit uint64) workResult {
	var res workResult
	for n := uint64(2); res.Iterations < limit; n++ {
		if slice > 0 && res.Iterations%slice == 0 && budget.Exceeded() {
			res.StoppedByBudget = true
			break
		}
		if isPrime(n) {
			res.Primes++
		}
		res.Iterations++
	}
	res.ElapsedSeconds = budget.Spent()
	return res
}

func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}
