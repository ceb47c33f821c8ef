// Package impact models the declared CRUD effects tasks have on named
// resources, and detects pairs of effects that cannot safely interleave.
package impact

import (
	"fmt"
	"sync"
)

// Kind classifies the resource an impact targets.
type Kind string

const (
	KindFile     Kind = "file"
	KindEndpoint Kind = "endpoint"
	KindFunction Kind = "function"
	KindTable    Kind = "table"
	KindType     Kind = "type"
)

// Op is the CRUD operation an impact declares on its target.
type Op string

const (
	OpCreate Op = "CREATE"
	OpRead   Op = "READ"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Provenance records how an impact was determined.
type Provenance string

const (
	ProvenanceInferred  Provenance = "inferred"
	ProvenanceDeclared  Provenance = "declared"
	ProvenanceValidated Provenance = "validated"
)

// Impact is a declared effect a task has on a named resource.
type Impact struct {
	TaskID     string
	Kind       Kind
	Op         Op
	Path       string  // Target path (file path, endpoint route, table name, ...)
	Name       string  // Optional target name/signature within the path
	Confidence float64 // 0..1
	Provenance Provenance
}

// Target returns the resource identity two impacts must share to conflict.
func (i Impact) Target() string {
	return string(i.Kind) + ":" + i.Path + "#" + i.Name
}

// Key returns the uniqueness key: a task cannot declare the same impact twice.
func (i Impact) Key() string {
	return i.TaskID + "|" + string(i.Kind) + "|" + string(i.Op) + "|" + i.Path + "|" + i.Name
}

// ErrDuplicateImpact is returned when a task declares the same
// (kind, op, path, name) impact twice. Callers should merge or update
// the existing declaration instead.
type ErrDuplicateImpact struct {
	Existing Impact
}

func (e *ErrDuplicateImpact) Error() string {
	return fmt.Sprintf("duplicate impact: task %q already declares %s %s on %s",
		e.Existing.TaskID, e.Existing.Op, e.Existing.Kind, e.Existing.Path)
}

// Registry holds the declared impacts of a set of tasks, indexed by task.
// It is the in-memory working set the planner and cascade analyzer read;
// persistence is the caller's concern.
type Registry struct {
	mu      sync.RWMutex
	byTask  map[string][]Impact
	byKey   map[string]Impact
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byTask: make(map[string][]Impact),
		byKey:  make(map[string]Impact),
	}
}

// Register validates the uniqueness invariant and stores the impact.
// Returns *ErrDuplicateImpact without mutating anything on violation.
func (r *Registry) Register(im Impact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := im.Key()
	if existing, ok := r.byKey[key]; ok {
		return &ErrDuplicateImpact{Existing: existing}
	}

	r.byKey[key] = im
	r.byTask[im.TaskID] = append(r.byTask[im.TaskID], im)
	return nil
}

// ForTask returns a copy of the impacts declared by the given task.
func (r *Registry) ForTask(taskID string) []Impact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Impact(nil), r.byTask[taskID]...)
}

// ReplaceTask swaps out all impacts for a task, used when a task edit
// changes its declared impact set.
func (r *Registry) ReplaceTask(taskID string, impacts []Impact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Validate the new set before touching anything.
	seen := make(map[string]Impact, len(impacts))
	for _, im := range impacts {
		key := im.Key()
		if existing, ok := seen[key]; ok {
			return &ErrDuplicateImpact{Existing: existing}
		}
		seen[key] = im
	}

	for _, im := range r.byTask[taskID] {
		delete(r.byKey, im.Key())
	}
	delete(r.byTask, taskID)

	for _, im := range impacts {
		r.byKey[im.Key()] = im
		r.byTask[taskID] = append(r.byTask[taskID], im)
	}
	return nil
}
