// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed activities.json
var defaultRegistry []byte

// Default returns the registry compiled into the binary.
func Default() (*ActivityRegistry, error) {
	return Parse(defaultRegistry)
}

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*ActivityRegistry, error) {
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse activity registry: %w", err)
	}
	return &reg, nil
}

// Find looks an activity up by its Camunda task type.
func (r *ActivityRegistry) Find(taskType string) (Activity, bool) {
	for _, a := range r.Activities {
		if a.TaskType == taskType {
			return a, true
		}
	}
	return Activity{}, false
}

// InputSchemaJSON returns the input schema as a JSON document, or "" when the
// activity declares none.
func (a Activity) InputSchemaJSON() (string, error) {
	if len(a.InputSchema) == 0 {
		return "", nil
	}
	b, err := json.Marshal(a.InputSchema)
	if err != nil {
		return "", fmt.Errorf("marshal input schema for %s: %w", a.TaskType, err)
	}
	return string(b), nil
}

// TimeoutDuration parses Timeout; an empty value is zero.
func (a Activity) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(a.Timeout)
}

// Validate reports every problem in the registry at once.
func (r *ActivityRegistry) Validate() error {
	var problems []string
	seen := make(map[string]bool, len(r.Activities))
	for i, a := range r.Activities {
		name := a.ID
		if name == "" {
			name = fmt.Sprintf("activities[%d]", i)
			problems = append(problems, name+": id is required")
		}
		if a.TaskType == "" {
			problems = append(problems, name+": taskType is required")
		} else if seen[a.TaskType] {
			problems = append(problems, name+": duplicate taskType "+a.TaskType)
		}
		seen[a.TaskType] = true

		if _, err := a.TimeoutDuration(); err != nil {
			problems = append(problems, name+": bad timeout: "+err.Error())
		}
		if a.Retries < 0 {
			problems = append(problems, name+": retries must not be negative")
		}

		schema, err := a.InputSchemaJSON()
		if err != nil {
			problems = append(problems, name+": "+err.Error())
			continue
		}
		if schema != "" {
			if _, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema)); err != nil {
				problems = append(problems, name+": input schema: "+err.Error())
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid activity registry: %s", strings.Join(problems, "; "))
	}
	return nil
}
