// Package history implements the per-document undo/redo log of text
// snapshots. It is a linear stack: committing a new snapshot after an undo
// discards the redo branch.
package history

// Stack holds the text snapshots of one document and the index of the
// snapshot currently shown. Entries is never empty and
// 0 <= Pointer < len(Entries).
type Stack struct {
	Entries []string
	Pointer int
}

// New returns a stack for a fresh document: a single empty snapshot.
func New() Stack {
	return Stack{Entries: []string{""}, Pointer: 0}
}

// Of returns a stack whose only snapshot is text.
func Of(text string) Stack {
	return Stack{Entries: []string{text}, Pointer: 0}
}

// Current returns the snapshot at the pointer.
func (s Stack) Current() string {
	if len(s.Entries) == 0 {
		return ""
	}
	return s.Entries[s.Pointer]
}

// Len returns the number of snapshots.
func (s Stack) Len() int { return len(s.Entries) }

// CanUndo reports whether Undo would move the pointer.
func (s Stack) CanUndo() bool { return s.Pointer > 0 }

// CanRedo reports whether Redo would move the pointer.
func (s Stack) CanRedo() bool { return s.Pointer < len(s.Entries)-1 }

// Append drops every snapshot after the pointer, pushes text and moves the
// pointer onto it.
func (s *Stack) Append(text string) {
	if len(s.Entries) == 0 {
		*s = New()
	}
	s.Entries = append(s.Entries[:s.Pointer+1], text)
	s.Pointer = len(s.Entries) - 1
}

// Undo steps back one snapshot. It reports false when already at the oldest.
func (s *Stack) Undo() bool {
	if !s.CanUndo() {
		return false
	}
	s.Pointer--
	return true
}

// Redo steps forward one snapshot. It reports false when already at the newest.
func (s *Stack) Redo() bool {
	if !s.CanRedo() {
		return false
	}
	s.Pointer++
	return true
}

// Trim keeps at most max snapshots and never drops the one under the
// pointer. The oldest snapshots go first; when the pointer sits among them,
// the newest redo snapshots are dropped instead. max <= 0 means unbounded.
func (s *Stack) Trim(max int) {
	if max <= 0 || len(s.Entries) <= max {
		return
	}
	start := min(len(s.Entries)-max, s.Pointer)
	s.Entries = append([]string(nil), s.Entries[start:start+max]...)
	s.Pointer -= start
}

// Clone returns a deep copy.
func (s Stack) Clone() Stack {
	return Stack{Entries: append([]string(nil), s.Entries...), Pointer: s.Pointer}
}

// Valid reports whether the stack satisfies its invariants.
func (s Stack) Valid() bool {
	return len(s.Entries) > 0 && s.Pointer >= 0 && s.Pointer < len(s.Entries)
}
