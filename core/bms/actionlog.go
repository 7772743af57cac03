package bms

import "fmt"

// ActionLog is the append-only audit trail of BMS decisions. It is drained
// and cleared by the external visualization collaborator.
type ActionLog struct {
	entries []string
}

// Append adds one entry to the log.
func (l *ActionLog) Append(entry string) {
	l.entries = append(l.entries, entry)
}

// Appendf formats and appends one entry.
func (l *ActionLog) Appendf(format string, args ...any) {
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

// All returns a copy of the full ordered log.
func (l *ActionLog) All() []string {
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last returns the most recent entry.
func (l *ActionLog) Last() string {
	if len(l.entries) == 0 {
		return "No actions recorded"
	}
	return l.entries[len(l.entries)-1]
}

// Clear empties the log.
func (l *ActionLog) Clear() {
	l.entries = nil
}
