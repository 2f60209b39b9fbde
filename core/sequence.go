package core

import (
	"strings"
	"sync/atomic"
)

// Sequence hands out strictly increasing ids. It is safe for concurrent use and
// is owned by one simulation run.
type Sequence struct {
	last atomic.Uint64
}

// NewSequence returns a sequence whose first id is 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next allocates the next id.
func (s *Sequence) Next() VersionID {
	return VersionID(s.last.Add(1))
}

// Value returns the last allocated id, zero if none.
func (s *Sequence) Value() VersionID {
	return VersionID(s.last.Load())
}

// ObjectNamer produces object names A, B, ..., Z, AA, AB, ...
type ObjectNamer struct {
	next atomic.Uint64
}

// NewObjectNamer creates a namer starting at "A".
func NewObjectNamer() *ObjectNamer {
	return &ObjectNamer{}
}

// Next returns a fresh object name.
func (n *ObjectNamer) Next() string {
	return ObjectName(int(n.next.Add(1) - 1))
}

// ObjectName returns the idx-th name in spreadsheet column order.
func ObjectName(idx int) string {
	var sb strings.Builder
	buf := make([]byte, 0, 4)
	for idx >= 0 {
		buf = append(buf, byte('A'+idx%26))
		idx = idx/26 - 1
	}
	for i := len(buf) - 1; i >= 0; i-- {
		sb.WriteByte(buf[i])
	}
	return sb.String()
}
