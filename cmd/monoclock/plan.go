package main

import (
	"fmt"
	"strconv"
	"strings"

	"go.sazak.io/monoclock/cmd/monoclock/backend"
)

// planEntry is one backend of a bench plan and how many reads it gets.
type planEntry struct {
	Backend string
	Calls   uint64
}

// parseBenchPlan parses the bench plan from the command line flag, e.g.
// "runtime:100000,platform:50000". Entries keep the order they were first
// given in; a repeated backend keeps the last count.
func parseBenchPlan(planStr string) ([]planEntry, error) {
	plan := make([]planEntry, 0, len(backend.Names))
	if strings.TrimSpace(planStr) == "" {
		return plan, nil
	}

	index := make(map[string]int)
	pairs := strings.Split(planStr, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid bench plan format: %s", pair)
		}

		name := strings.TrimSpace(parts[0])
		if !backend.Valid(name) {
			return nil, fmt.Errorf("%w: %s", backend.ErrUnknown, name)
		}

		countStr := strings.ReplaceAll(strings.TrimSpace(parts[1]), "_", "")
		calls, err := strconv.ParseUint(countStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid call count for %s: %v", name, err)
		}
		if calls == 0 {
			return nil, fmt.Errorf("call count must be positive, got 0 for %s", name)
		}

		if i, ok := index[name]; ok {
			plan[i].Calls = calls
			continue
		}
		index[name] = len(plan)
		plan = append(plan, planEntry{Backend: name, Calls: calls})
	}

	return plan, nil
}
