package graph

import "fmt"

// RelationshipType classifies a directed edge between two tasks.
// Only depends_on/blocks and conflicts_with affect scheduling; the rest
// are advisory metadata.
type RelationshipType string

const (
	RelDependsOn     RelationshipType = "depends_on"
	RelBlocks        RelationshipType = "blocks"
	RelSubtaskOf     RelationshipType = "subtask_of"
	RelSupersedes    RelationshipType = "supersedes"
	RelRelatedTo     RelationshipType = "related_to"
	RelDuplicateOf   RelationshipType = "duplicate_of"
	RelImplements    RelationshipType = "implements"
	RelInspiredBy    RelationshipType = "inspired_by"
	RelConflictsWith RelationshipType = "conflicts_with"
	RelEnables       RelationshipType = "enables"
	RelTests         RelationshipType = "tests"
)

// ValidRelationshipTypes returns all valid relationship type values.
func ValidRelationshipTypes() []RelationshipType {
	return []RelationshipType{
		RelDependsOn, RelBlocks, RelSubtaskOf, RelSupersedes, RelRelatedTo,
		RelDuplicateOf, RelImplements, RelInspiredBy, RelConflictsWith,
		RelEnables, RelTests,
	}
}

// IsValid returns true if t is a known relationship type.
func (t RelationshipType) IsValid() bool {
	switch t {
	case RelDependsOn, RelBlocks, RelSubtaskOf, RelSupersedes, RelRelatedTo,
		RelDuplicateOf, RelImplements, RelInspiredBy, RelConflictsWith,
		RelEnables, RelTests:
		return true
	default:
		return false
	}
}

// Scheduling reports whether edges of this type participate in wave
// planning. Advisory types may form cycles; that is harmless.
func (t RelationshipType) Scheduling() bool {
	return t == RelDependsOn || t == RelBlocks || t == RelConflictsWith
}

// Relationship is a typed edge between two tasks.
type Relationship struct {
	Source string
	Target string
	Type   RelationshipType
}

// Key returns the uniqueness key per (source, target, type).
func (r Relationship) Key() string {
	return r.Source + "|" + r.Target + "|" + string(r.Type)
}

func (r Relationship) String() string {
	return fmt.Sprintf("%s %s %s", r.Source, r.Type, r.Target)
}
