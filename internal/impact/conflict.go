package impact

// Conflict describes a pair of impacts on the same target whose operations
// cannot safely interleave.
type Conflict struct {
	A Impact
	B Impact
}

// conflictMatrix maps unordered operation pairs to a conflict verdict.
// CREATE×CREATE, CREATE×DELETE, READ×DELETE, UPDATE×UPDATE, UPDATE×DELETE
// and DELETE×DELETE conflict; CREATE×READ, CREATE×UPDATE, READ×READ and
// READ×UPDATE do not.
var conflictMatrix = map[[2]Op]bool{
	{OpCreate, OpCreate}: true,
	{OpCreate, OpDelete}: true,
	{OpRead, OpDelete}:   true,
	{OpUpdate, OpUpdate}: true,
	{OpUpdate, OpDelete}: true,
	{OpDelete, OpDelete}: true,
}

// opOrder normalizes a pair of operations so the matrix lookup is symmetric.
var opOrder = map[Op]int{OpCreate: 0, OpRead: 1, OpUpdate: 2, OpDelete: 3}

// OpsConflict reports whether two operations on the same target conflict.
func OpsConflict(a, b Op) bool {
	if opOrder[a] > opOrder[b] {
		a, b = b, a
	}
	return conflictMatrix[[2]Op{a, b}]
}

// Conflicts returns every conflicting pair between two impact sets.
// Pure function: nothing is persisted, conflicts are only reported.
func Conflicts(a, b []Impact) []Conflict {
	byTarget := make(map[string][]Impact, len(a))
	for _, im := range a {
		byTarget[im.Target()] = append(byTarget[im.Target()], im)
	}

	var out []Conflict
	for _, imB := range b {
		for _, imA := range byTarget[imB.Target()] {
			if OpsConflict(imA.Op, imB.Op) {
				out = append(out, Conflict{A: imA, B: imB})
			}
		}
	}
	return out
}

// TasksConflict reports whether any shared-target impact pair between the
// two sets conflicts.
func TasksConflict(a, b []Impact) bool {
	return len(Conflicts(a, b)) > 0
}
