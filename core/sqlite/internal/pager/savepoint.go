package pager

import (
	serrors "github.com/revred/sharc/core/errors"
)

// Savepoint is a named rewind point inside an open write transaction. It
// captures the manager's dirty set at creation; rolling back to it restores
// exactly that state without disturbing the outer transaction.
type Savepoint struct {
	Name string
	snap map[uint32][]byte
}

// SavepointStack manages the nesting discipline: releasing or rolling back
// to a savepoint also discards every savepoint opened after it.
type SavepointStack struct {
	stack []*Savepoint
}

// Open pushes a new savepoint capturing m's current dirty state.
func (s *SavepointStack) Open(m *Manager, name string) *Savepoint {
	sp := &Savepoint{Name: name, snap: m.Snapshot()}
	s.stack = append(s.stack, sp)
	return sp
}

func (s *SavepointStack) find(name string) int {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].Name == name {
			return i
		}
	}
	return -1
}

// Release drops the named savepoint and all savepoints nested inside it.
// The changes made since it was opened remain part of the transaction.
func (s *SavepointStack) Release(name string) error {
	i := s.find(name)
	if i < 0 {
		return serrors.NewNotFound("savepoint", name)
	}
	for _, sp := range s.stack[i:] {
		for _, buf := range sp.snap {
			putBuf(buf)
		}
		sp.snap = nil
	}
	s.stack = s.stack[:i]
	return nil
}

// RollbackTo rewinds m to the named savepoint's captured state. The
// savepoint itself stays open (matching SQL ROLLBACK TO semantics); inner
// savepoints are discarded.
func (s *SavepointStack) RollbackTo(m *Manager, name string) error {
	i := s.find(name)
	if i < 0 {
		return serrors.NewNotFound("savepoint", name)
	}
	for _, sp := range s.stack[i+1:] {
		for _, buf := range sp.snap {
			putBuf(buf)
		}
		sp.snap = nil
	}
	s.stack = s.stack[:i+1]

	sp := s.stack[i]
	m.Restore(sp.snap)
	// Restore consumed the snapshot's buffers; re-capture so the savepoint
	// can be rolled back to again.
	sp.snap = m.Snapshot()
	return nil
}

// Clear discards every savepoint, returning snapshot buffers to the pool.
// Called on commit and rollback of the enclosing transaction.
func (s *SavepointStack) Clear() {
	for _, sp := range s.stack {
		for _, buf := range sp.snap {
			putBuf(buf)
		}
		sp.snap = nil
	}
	s.stack = nil
}
