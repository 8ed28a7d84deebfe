package harness

import (
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted host session.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Project is the document title.
	Project string `yaml:"project"`

	// User is the operator name the host reports.
	User string `yaml:"user"`

	// Prefix is the identity prefix the gate would have resolved.
	Prefix string `yaml:"prefix"`

	// Date is the session day, yyyy-mm-dd. Step times are on this day.
	Date string `yaml:"date"`

	// CarryForward toggles report carry-forward. Defaults to on.
	CarryForward *bool `yaml:"carry_forward,omitempty"`

	// Elements is the initial content of the document.
	Elements []ElementSpec `yaml:"elements"`

	// Steps is the timeline of host notifications.
	Steps []Step `yaml:"steps"`

	// Expect holds checks evaluated after the last step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// ElementSpec describes one document element.
type ElementSpec struct {
	ID       int64  `yaml:"id"`
	Category string `yaml:"category"`
	Name     string `yaml:"name"`
	// Level is the id of the containing level; absent means none.
	Level *int64 `yaml:"level,omitempty"`
	Type  bool   `yaml:"type,omitempty"`
}

// Step is one host notification or fixture change.
type Step struct {
	// At is the wall-clock time of the step, HH:MM or HH:MM:SS.
	At string `yaml:"at"`

	// Do is the step kind.
	Do string `yaml:"do"`

	// IDs lists the elements removed by a delete step.
	IDs []int64 `yaml:"ids,omitempty"`

	// File names the table a lock or unlock step targets.
	File string `yaml:"file,omitempty"`
}

// Step kinds.
const (
	StepOpen     = "open"
	StepDelete   = "delete"
	StepSave     = "save"
	StepSync     = "sync"
	StepTick     = "tick"
	StepShutdown = "shutdown"
	StepLock     = "lock"
	StepUnlock   = "unlock"
)

// Lockable tables.
const (
	FileLog      = "log"
	FileSnapshot = "snapshot"
	FileReport   = "report"
)

// DateLayout is the layout of Scenario.Date.
const DateLayout = "2006-01-02"

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(fs afero.Fs, path string) (*Scenario, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Project == "" {
		return fmt.Errorf("project is required")
	}
	if s.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if _, err := s.Day(); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	seen := make(map[int64]bool, len(s.Elements))
	for _, el := range s.Elements {
		if seen[el.ID] {
			return fmt.Errorf("element %d: duplicate id", el.ID)
		}
		seen[el.ID] = true
	}

	var last time.Duration = -1
	for i, step := range s.Steps {
		offset, err := step.Offset()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if offset < last {
			return fmt.Errorf("step %d: time %s goes backwards", i, step.At)
		}
		last = offset

		switch step.Do {
		case StepOpen, StepSave, StepSync, StepTick, StepShutdown:
		case StepDelete:
			if len(step.IDs) == 0 {
				return fmt.Errorf("step %d: delete needs ids", i)
			}
		case StepLock, StepUnlock:
			switch step.File {
			case FileLog, FileSnapshot, FileReport:
			default:
				return fmt.Errorf("step %d: unknown file %q", i, step.File)
			}
		default:
			return fmt.Errorf("step %d: unknown step %q", i, step.Do)
		}
	}
	return nil
}

// Day returns the session date at local midnight.
func (s *Scenario) Day() (time.Time, error) {
	return time.ParseInLocation(DateLayout, s.Date, time.Local)
}

// Offset returns the step time as a duration since midnight.
func (st Step) Offset() (time.Duration, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.Parse(layout, st.At)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid time %q", st.At)
}
