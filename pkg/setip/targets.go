package setip

// Targets are the viable jump destinations of a method.
type Targets struct {
	Lines           []LineTarget `cbor:"lines"`
	SourceDebugLine *string      `cbor:"sourceDebugLine,omitempty"`
}

// Find returns the target for line.
func (t *Targets) Find(line int) (LineTarget, bool) {
	for _, lt := range t.Lines {
		if lt.Line == line {
			return lt, true
		}
	}
	return LineTarget{}, false
}

// GetAvailableGotoLines returns the lines of method that execution can be
// moved to: the stack is empty at their boundary and their locals are
// known. A line emitted more than once keeps its first qualifying
// occurrence in binary order.
func GetAvailableGotoLines(owner string, method MethodName, class []byte) (*Targets, error) {
	mc, err := findMethod(owner, method, class)
	if err != nil {
		return nil, err
	}
	valid, err := mc.stackEmptyLines()
	if err != nil {
		return nil, err
	}
	lines, err := mc.lineTargets(nil)
	if err != nil {
		return nil, err
	}
	if mc.method.Name == "<init>" {
		// Boundaries before the super constructor call are skipped by the
		// locals analysis; jumping past the call leaves the receiver
		// uninitialized.
		log.Debugf("%s: constructors have no viable targets", mc.owner)
		return nil, ErrNoViableTarget
	}

	out := &Targets{SourceDebugLine: valid.SourceDebugLine}
	seen := make(map[int]bool)
	for _, lt := range lines {
		if seen[lt.Line] || !valid.Contains(lt.Line) || !valid.EmptyAt(lt.Offset) {
			continue
		}
		seen[lt.Line] = true
		out.Lines = append(out.Lines, lt)
	}
	if len(out.Lines) == 0 {
		return nil, ErrNoViableTarget
	}
	return out, nil
}

// GetTargetLineInfo returns the local state at every line boundary of
// method, without filtering on the operand stack.
func GetTargetLineInfo(owner string, method MethodName, class []byte) ([]LineTarget, error) {
	return AnalyzeLocals(owner, method, class)
}
