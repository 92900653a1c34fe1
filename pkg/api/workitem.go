package api

import (
	"fmt"
	"regexp"
	"strings"
)

// TimedOutFieldKey is the Workitem field key set by a cancel(timeout),
// spec.md §4.1 step 4 / §7: "__timed_out__ = [fei, now]".
const TimedOutFieldKey = "__timed_out__"

// TimedOutMarker is the value stored under TimedOutFieldKey.
type TimedOutMarker struct {
	FEI FEI
	At  int64 // unix nanos
}

// Workitem is the flow-level payload carried between expressions.
// Fields is a free-form bag; concrete expressions read/write it by
// convention (the way the teacher's StepFunc reads/writes `any` input).
type Workitem struct {
	Fields map[string]any
}

// NewWorkitem returns an empty Workitem with an initialized Fields map.
func NewWorkitem() Workitem {
	return Workitem{Fields: map[string]any{}}
}

// Clone returns a deep-enough copy of w: a fresh Fields map with the same
// values. This is the copy spec.md §4.1 step 2 and §4.5 step (forget)
// require so a detached branch never aliases the caller's workitem.
func (w Workitem) Clone() Workitem {
	out := Workitem{Fields: make(map[string]any, len(w.Fields))}
	for k, v := range w.Fields {
		out.Fields[k] = v
	}
	return out
}

var interpolation = regexp.MustCompile(`\$\{([^}]*)\}`)

// Interpolate substitutes ${name} references in s against w.Fields,
// matching spec.md §4.1 step 1's "substitutes ${…} against the workitem".
// Unknown references are substituted with the empty string.
func Interpolate(s string, w Workitem) string {
	return interpolation.ReplaceAllStringFunc(s, func(m string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(m, "${"), "}")
		if v, ok := w.Fields[name]; ok {
			return toStringValue(v)
		}
		return ""
	})
}

func toStringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// Condition evaluates the `if`/`unless` guard pair against tree t and
// workitem w, per spec.md §4.1 step 1: a shared predicate that substitutes
// ${…} against the workitem. It returns true when the node should apply
// (guard passes), false when it should be vetoed with a quiet reply.
func Condition(t Tree, w Workitem) bool {
	ifAttr, hasIf := t.Attr("if")
	unlessAttr, hasUnless := t.Attr("unless")

	if hasIf {
		if !truthyGuard(ifAttr, w) {
			return false
		}
	}
	if hasUnless {
		if truthyGuard(unlessAttr, w) {
			return false
		}
	}
	return true
}

func truthyGuard(v any, w Workitem) bool {
	s, ok := v.(string)
	if !ok {
		return v != nil
	}
	resolved := Interpolate(s, w)
	return resolved != "" && resolved != "false" && resolved != "0"
}
