package engine

import (
	"fmt"
	"strings"

	"github.com/aristath/waveplan/internal/atomicity"
)

// AtomicityError reports that a task failed atomicity validation and may
// not be scheduled. The embedded result carries the violations and, when
// the footprint or effort bound was exceeded, a decomposition suggestion.
type AtomicityError struct {
	TaskID string
	Result atomicity.Result
}

func (e *AtomicityError) Error() string {
	msgs := make([]string, 0, len(e.Result.Violations))
	for _, v := range e.Result.Violations {
		if v.Severity == atomicity.SeverityError {
			msgs = append(msgs, string(v.Rule))
		}
	}
	return fmt.Sprintf("task %q violates atomicity: %s", e.TaskID, strings.Join(msgs, ", "))
}
