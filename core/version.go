package core

import "fmt"

// VersionID identifies one write. Zero means "no version".
type VersionID uint64

// NoVersion is the parent of a root write.
const NoVersion VersionID = 0

// Version is an immutable record of one write to a named object.
type Version struct {
	ID        VersionID   `json:"id"`
	Parent    VersionID   `json:"parent"`
	Name      string      `json:"name"`
	Creator   string      `json:"creator"`
	Level     Consistency `json:"level"`
	CreatedAt float64     `json:"createdAt"`
	UpdatedAt float64     `json:"updatedAt"`
}

func (Version) isPayload() {}

// IsRoot reports whether the version starts a new object history.
func (v Version) IsRoot() bool {
	return v.Parent == NoVersion
}

// Fork derives a child of v written by writer at now. The creation time is
// carried over from v so visibility latency spans the whole object history.
func (v Version) Fork(id VersionID, writer string, level Consistency, now float64) Version {
	return Version{
		ID:        id,
		Parent:    v.ID,
		Name:      v.Name,
		Creator:   writer,
		Level:     level,
		CreatedAt: v.CreatedAt,
		UpdatedAt: now,
	}
}

// Entry converts the version into a validator log entry.
func (v Version) Entry() LogEntry {
	return LogEntry{Name: v.Name, Version: v.ID, Parent: v.Parent}
}

func (v Version) String() string {
	return fmt.Sprintf("%s.%d", v.Name, v.ID)
}
