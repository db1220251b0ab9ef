package taskrt

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCPUSet parses a cpuset string of comma-separated items, each either
// a single CPU index or an inclusive "a-b" range, e.g. "0-3,5,7".
//
// An empty string yields an empty, non-nil slice (meaning "no restriction"
// at the caller's discretion).
func ParseCPUSet(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}

	var cpus []int
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if dash := strings.IndexByte(item, '-'); dash >= 0 {
			lo, err := strconv.Atoi(strings.TrimSpace(item[:dash]))
			if err != nil {
				return nil, fmt.Errorf("taskrt: invalid cpuset range %q: %w", item, err)
			}
			hi, err := strconv.Atoi(strings.TrimSpace(item[dash+1:]))
			if err != nil {
				return nil, fmt.Errorf("taskrt: invalid cpuset range %q: %w", item, err)
			}
			if hi < lo {
				return nil, fmt.Errorf("taskrt: invalid cpuset range %q: end before start", item)
			}
			for cpu := lo; cpu <= hi; cpu++ {
				cpus = append(cpus, cpu)
			}
			continue
		}
		cpu, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("taskrt: invalid cpuset entry %q: %w", item, err)
		}
		cpus = append(cpus, cpu)
	}
	return cpus, nil
}
