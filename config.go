package taskrt

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// DefaultGroupName is the group a Scheduler falls back to when its config
// defines no explicit groups.
const DefaultGroupName = "default_grp"

// Config is the JSON document a Scheduler loads from conf/<process_group>.conf.
// encoding/json is the only configuration-format mechanism observed in the
// retrieved corpus's non-test code (see DESIGN.md); there is no third-party
// format library to ground this concern on instead.
type Config struct {
	SchedulerConf SchedulerConf `json:"scheduler_conf"`
}

// SchedulerConf is the top-level scheduler configuration block.
type SchedulerConf struct {
	Policy             string       `json:"policy"`
	RoutineNum         int          `json:"routine_num"`
	DefaultProcNum     int          `json:"default_proc_num"`
	ProcessLevelCPUSet string       `json:"process_level_cpuset"`
	ClassicConf        ClassicConf  `json:"classic_conf"`
	Threads            []ThreadConf `json:"threads"`
}

// ClassicConf holds the classic policy's group definitions.
type ClassicConf struct {
	Groups []GroupConf `json:"groups"`
}

// GroupConf configures one named processor group.
type GroupConf struct {
	Name            string     `json:"name"`
	ProcessorNum    int        `json:"processor_num"`
	CPUSet          string     `json:"cpuset"`
	Affinity        string     `json:"affinity"`
	ProcessorPolicy string     `json:"processor_policy"`
	ProcessorPrio   int        `json:"processor_prio"`
	Tasks           []TaskConf `json:"tasks"`
}

// TaskConf overrides a named task's priority and/or group assignment.
type TaskConf struct {
	Name      string `json:"name"`
	Prio      int    `json:"prio"`
	GroupName string `json:"group_name"`
}

// ThreadConf names an inner thread's attributes, e.g. the "timer" thread.
type ThreadConf struct {
	Name string `json:"name"`
}

// DefaultConfig returns the configuration a Scheduler uses when no config
// file is present: the classic policy, DefaultProcNum 2, and no explicit
// groups, so NewFromConfig builds a single DefaultGroupName group sized to
// DefaultProcNum.
func DefaultConfig() *Config {
	return &Config{
		SchedulerConf: SchedulerConf{
			Policy:         "classic",
			DefaultProcNum: 2,
		},
	}
}

// LoadConfig loads and validates a Config from path, following the
// DefaultConfig → read and parse the file → applyEnvironmentOverrides →
// Validate → logRiskyCombinations pipeline this module grounds on noisefs's
// config loader (see DESIGN.md).
// A missing file is not an error: defaults stand, matching the
// ConfigMissing error kind's "log warning, use defaults, continue" handling.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("taskrt: parsing config %q: %w", path, jsonErr)
		}
	case os.IsNotExist(err):
		LogWarn(getGlobalLogger(), "config", (&ConfigMissingError{Field: path}).Error(), nil)
	default:
		return nil, fmt.Errorf("taskrt: reading config %q: %w", path, err)
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.logRiskyCombinations()
	return cfg, nil
}

// applyEnvironmentOverrides applies TASKRT_* environment variables over
// whatever defaults/file values are already in cfg.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("TASKRT_POLICY"); v != "" {
		cfg.SchedulerConf.Policy = v
	}
	if v := os.Getenv("TASKRT_DEFAULT_PROC_NUM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SchedulerConf.DefaultProcNum = n
		}
	}
	if v := os.Getenv("TASKRT_ROUTINE_NUM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SchedulerConf.RoutineNum = n
		}
	}
	if v := os.Getenv("TASKRT_PROCESS_LEVEL_CPUSET"); v != "" {
		cfg.SchedulerConf.ProcessLevelCPUSet = v
	}
}

// Validate normalizes and checks cfg, returning a descriptive error for any
// out-of-range field (priorities, affinity mode, scheduling policy).
func (c *Config) Validate() error {
	sc := &c.SchedulerConf
	if sc.Policy == "" {
		sc.Policy = "classic"
	}
	if sc.Policy != "classic" && sc.Policy != "choreography" {
		return fmt.Errorf("taskrt: scheduler_conf.policy: unrecognized value %q", sc.Policy)
	}
	if sc.DefaultProcNum <= 0 {
		sc.DefaultProcNum = 2
	}
	if _, err := ParseCPUSet(sc.ProcessLevelCPUSet); err != nil {
		return err
	}

	for i := range sc.ClassicConf.Groups {
		g := &sc.ClassicConf.Groups[i]
		if g.Name == "" {
			return fmt.Errorf("taskrt: scheduler_conf.classic_conf.groups[%d]: missing name", i)
		}
		if g.ProcessorNum <= 0 {
			g.ProcessorNum = 1
		}
		if _, err := ParseCPUSet(g.CPUSet); err != nil {
			return fmt.Errorf("taskrt: group %q: %w", g.Name, err)
		}
		switch g.Affinity {
		case "":
			g.Affinity = "range"
		case "range", "1to1":
		default:
			return fmt.Errorf("taskrt: group %q: invalid affinity %q", g.Name, g.Affinity)
		}
		switch g.ProcessorPolicy {
		case "":
			g.ProcessorPolicy = "SCHED_OTHER"
		case "SCHED_FIFO", "SCHED_RR", "SCHED_OTHER":
		default:
			return fmt.Errorf("taskrt: group %q: invalid processor_policy %q", g.Name, g.ProcessorPolicy)
		}
		for _, t := range g.Tasks {
			if t.Prio < 0 || t.Prio >= MaxPriority {
				return fmt.Errorf("taskrt: task %q: prio %d out of range [0,%d)", t.Name, t.Prio, MaxPriority)
			}
		}
	}
	return nil
}

// logRiskyCombinations warns about configurations that parse fine but are
// likely misconfigurations, e.g. requesting a real-time scheduling policy
// without restricting the group to any particular CPUs.
func (c *Config) logRiskyCombinations() {
	for _, g := range c.SchedulerConf.ClassicConf.Groups {
		if (g.ProcessorPolicy == "SCHED_FIFO" || g.ProcessorPolicy == "SCHED_RR") && g.CPUSet == "" {
			LogWarn(getGlobalLogger(), "config", "group requests a real-time scheduling policy without a cpuset", map[string]interface{}{
				"group":  g.Name,
				"policy": g.ProcessorPolicy,
			})
		}
	}
}
