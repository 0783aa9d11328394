package contextpipe

import "fmt"

// MaxDuplicateReads is the per-turn duplicate count at which the engine
// stops filtering silently and corrects the model instead.
const MaxDuplicateReads = 3

// ReadDedup tracks file paths already read in the current turn. One value
// per turn; not safe for concurrent use.
type ReadDedup struct {
	seen       map[string]bool
	duplicates int
}

func NewReadDedup() *ReadDedup {
	return &ReadDedup{seen: map[string]bool{}}
}

// ShouldRead records path and reports whether the read should execute.
// A repeated path is suppressed and counted.
func (d *ReadDedup) ShouldRead(path string) bool {
	if d.seen[path] {
		d.duplicates++
		return false
	}
	d.seen[path] = true
	return true
}

// Duplicates returns the cumulative suppressed-read count for the turn.
func (d *ReadDedup) Duplicates() int { return d.duplicates }

// Exceeded reports whether the duplicate count reached the corrective
// threshold. Once true the engine appends CorrectiveMessage and moves on.
func (d *ReadDedup) Exceeded() bool { return d.duplicates >= MaxDuplicateReads }

// CorrectiveMessage instructs the model to reuse content already in context.
func (d *ReadDedup) CorrectiveMessage() string {
	return fmt.Sprintf("ERROR: You've already read these files in this turn (%d duplicate reads). Their content is in your context — use it instead of reading again.", d.duplicates)
}
