package events

import "fmt"

// TableVersions maps a table name to the number of committed changes seen
// for that table since the tracker was created.
type TableVersions map[string]int

// Clone returns a copy that is safe to hand to callers.
func (v TableVersions) Clone() TableVersions {
	ret := make(TableVersions, len(v))
	for k, n := range v {
		ret[k] = n
	}
	return ret
}

type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("There is no table with name %s", e.Table)
}
