// pkg/registry/schema.go
package registry

import "sort"

// ActivityRegistry is the catalogue of Zeebe job workers behind the loan
// lifecycle process: record-status-transition and notify-status-change. The
// service loads it at startup to pick timeouts, retry budgets and the JSON
// schema each worker checks job variables against.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

// Activity is one job worker. TaskType is the BPMN service task type the
// worker subscribes to and is unique within a registry.
type Activity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	// Category groups generated workers on disk, e.g. internal/workers/lifecycle.
	Category string `json:"category"`
	Version  string `json:"version"`
	TaskType string `json:"taskType"`

	// InputSchema is applied to the raw job variables before the handler
	// decodes them. A job that fails it is failed without retries.
	InputSchema  Schema `json:"inputSchema"`
	OutputSchema Schema `json:"outputSchema"`
	// ErrorCodes lists the BPMN error codes the worker may throw.
	ErrorCodes []string `json:"errorCodes"`

	// Timeout is a Go duration string ("10s") bounding one job activation.
	Timeout string `json:"timeout"`
	Retries int    `json:"retries"`
	// Workflows names the BPMN process ids that use the task type.
	Workflows []string `json:"workflows"`
	// Tags name the backing systems the worker touches, e.g. postgres or ses.
	Tags []string `json:"tags"`
}

// Schema is a JSON schema document decoded into generic JSON values.
type Schema map[string]interface{}

// Properties returns the schema's property names in sorted order.
func (s Schema) Properties() []string {
	props, _ := s["properties"].(map[string]interface{})
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PropertyType returns the raw "type" of one property: a string, a list of
// strings for unions like ["string","null"], or nil when absent.
func (s Schema) PropertyType(name string) interface{} {
	props, _ := s["properties"].(map[string]interface{})
	details, _ := props[name].(map[string]interface{})
	return details["type"]
}

// Required returns the required property names in declaration order.
func (s Schema) Required() []string {
	raw, _ := s["required"].([]interface{})
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if name, ok := r.(string); ok {
			out = append(out, name)
		}
	}
	return out
}
