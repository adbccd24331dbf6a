package extractor

import (
	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
	"github.com/ajitpratap0/hibob-extractor/pkg/hibob"
)

// EmployeesTable is the table every run writes.
const EmployeesTable = "employees"

// Resource binds a configured sub-resource name to its table, API endpoint
// and phase.
type Resource struct {
	Name  string
	Table string
	Kind  hibob.SubResource
	Phase Phase
}

var registry = []Resource{
	{Name: "employment_history", Table: "employment_history", Kind: hibob.Employment, Phase: PhaseFetchingEmploymentHistory},
	{Name: "employee_lifecycle", Table: "employee_lifecycle", Kind: hibob.Lifecycle, Phase: PhaseFetchingLifecycle},
	{Name: "employee_work_history", Table: "employee_work_history", Kind: hibob.Work, Phase: PhaseFetchingWorkHistory},
}

// SupportedResources lists the accepted sub-resource names.
func SupportedResources() []string {
	names := make([]string, len(registry))
	for i, r := range registry {
		names[i] = r.Name
	}
	return names
}

func lookup(name string) (Resource, bool) {
	for _, r := range registry {
		if r.Name == name {
			return r, true
		}
	}
	return Resource{}, false
}

// ResolveResources maps configured names to resources in first-occurrence
// order. Any unknown name fails the whole list.
func ResolveResources(names []string) ([]Resource, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]Resource, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		r, ok := lookup(name)
		if !ok {
			return nil, errors.NewConfigError("unsupported endpoint %q, supported endpoints are %v", name, SupportedResources()).
				WithDetail("endpoint", name)
		}
		out = append(out, r)
	}
	return out, nil
}
