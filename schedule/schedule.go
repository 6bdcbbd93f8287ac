// Package schedule loads the 4D construction schedule: which location or level
// each named task is expected to take place on.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrInvalidDocument is returned when a schedule is neither a task map nor a
// task list.
var ErrInvalidDocument = errors.New("invalid schedule document")

// Task is one scheduled task.
type Task struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Schedule maps task names to expected locations.
type Schedule struct {
	tasks map[string]string
	order []string
}

// New builds a schedule from tasks. Later tasks with the same name replace
// earlier ones.
func New(tasks ...Task) *Schedule {
	s := &Schedule{tasks: make(map[string]string, len(tasks))}
	for _, t := range tasks {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		if _, exists := s.tasks[name]; !exists {
			s.order = append(s.order, name)
		}
		s.tasks[name] = strings.TrimSpace(t.Location)
	}
	return s
}

// Parse decodes either {"task": "location", ...} or
// {"tasks": [{"name": "...", "location": "..."}]}.
func Parse(data []byte) (*Schedule, error) {
	var list struct {
		Tasks []Task `json:"tasks"`
	}
	if err := json.Unmarshal(data, &list); err == nil && list.Tasks != nil {
		return New(list.Tasks...), nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	tasks := make([]Task, 0, len(raw))
	for name, value := range raw {
		var location string
		if err := json.Unmarshal(value, &location); err != nil {
			var obj struct {
				Location string `json:"location"`
			}
			if err := json.Unmarshal(value, &obj); err != nil {
				return nil, fmt.Errorf("%w: task %q: %v", ErrInvalidDocument, name, err)
			}
			location = obj.Location
		}
		tasks = append(tasks, Task{Name: name, Location: location})
	}
	return New(sortedTasks(tasks)...), nil
}

// Load reads a schedule from path. A missing file or empty path yields an
// empty schedule.
func Load(path string) (*Schedule, error) {
	if path == "" {
		return New(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("read schedule: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return New(), nil
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %s: %w", path, err)
	}
	return s, nil
}

// Location returns the expected location of a task.
func (s *Schedule) Location(task string) (string, bool) {
	if s == nil {
		return "", false
	}
	loc, ok := s.tasks[strings.TrimSpace(task)]
	return loc, ok
}

// Tasks returns the tasks in document order (map documents are sorted by name).
func (s *Schedule) Tasks() []Task {
	if s == nil {
		return nil
	}
	out := make([]Task, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, Task{Name: name, Location: s.tasks[name]})
	}
	return out
}

// Len returns the number of tasks.
func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tasks)
}

func sortedTasks(tasks []Task) []Task {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks
}
