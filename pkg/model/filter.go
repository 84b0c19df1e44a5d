package model

// DeletedFilter selects table entries by their tombstone flag during GC
// sweeps and scrubs.
type DeletedFilter int

const (
	FilterAny DeletedFilter = iota
	FilterNotDeleted
	FilterDeleted
)

// Apply reports whether an entry with the given tombstone flag matches.
func (f DeletedFilter) Apply(deleted bool) bool {
	switch f {
	case FilterNotDeleted:
		return !deleted
	case FilterDeleted:
		return deleted
	default:
		return true
	}
}
