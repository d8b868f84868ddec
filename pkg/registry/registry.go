// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", path, err)
	}
	return &reg, reg.Validate()
}

// Find returns the activity served under taskType.
func (r *ActivityRegistry) Find(taskType string) (Activity, bool) {
	for _, a := range r.Activities {
		if a.TaskType == taskType {
			return a, true
		}
	}
	return Activity{}, false
}

// TimeoutDuration parses Timeout, falling back to def when it is empty.
func (a Activity) TimeoutDuration(def time.Duration) (time.Duration, error) {
	if a.Timeout == "" {
		return def, nil
	}
	return time.ParseDuration(a.Timeout)
}

// Ready reports whether the activity may be bound to a running worker.
func (a Activity) Ready() bool {
	return a.ImplementationStatus == StatusCompleted || a.ImplementationStatus == StatusVerified
}

// Validate checks identifiers are present and unique and that timeouts parse.
func (r *ActivityRegistry) Validate() error {
	var problems []string
	ids := make(map[string]bool, len(r.Activities))
	taskTypes := make(map[string]bool, len(r.Activities))

	for i, a := range r.Activities {
		label := a.ID
		if label == "" {
			label = fmt.Sprintf("activities[%d]", i)
			problems = append(problems, label+": id is required")
		}
		if a.TaskType == "" {
			problems = append(problems, label+": taskType is required")
		}
		if ids[a.ID] && a.ID != "" {
			problems = append(problems, label+": duplicate id")
		}
		if taskTypes[a.TaskType] && a.TaskType != "" {
			problems = append(problems, label+": duplicate taskType "+a.TaskType)
		}
		ids[a.ID], taskTypes[a.TaskType] = true, true

		if _, err := a.TimeoutDuration(0); err != nil {
			problems = append(problems, fmt.Sprintf("%s: timeout %q: %v", label, a.Timeout, err))
		}
		switch a.ImplementationStatus {
		case StatusPlanned, StatusInProgress, StatusCompleted, StatusVerified:
		default:
			problems = append(problems, fmt.Sprintf("%s: unknown implementationStatus %q", label, a.ImplementationStatus))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid activity registry: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Unregistered returns the task types that have no ready activity in the registry.
func (r *ActivityRegistry) Unregistered(taskTypes ...string) []string {
	var missing []string
	for _, tt := range taskTypes {
		if a, ok := r.Find(tt); !ok || !a.Ready() {
			missing = append(missing, tt)
		}
	}
	return missing
}
