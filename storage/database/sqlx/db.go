package sqlxrepos

import (
	"strings"

	"github.com/trezcool/elimu/core"
)

// orderBy renders an ORDER BY clause from the requested ordering,
// defaulting to fallback when none is given.
func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}
