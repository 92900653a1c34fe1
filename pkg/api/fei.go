package api

import "fmt"

// FEI (Flow Expression Identifier) is the composite identity of a live
// expression: {workflow-id, expression-id (dotted path), child-id}.
//
// FEI is a value type: equality is field-wise and it is safe to use as a
// map key, matching the teacher's convention of string-keyed lookups
// (persistence.InMemoryStore keys instances by inst.ID).
type FEI struct {
	WorkflowID   string
	ExpressionID string
	ChildID      int
}

// String renders a FEI as a stable, human-readable key, used both for
// logging and as the canonical storage key.
func (f FEI) String() string {
	return fmt.Sprintf("%s!%s!%d", f.WorkflowID, f.ExpressionID, f.ChildID)
}

// Root reports whether this FEI names a workflow root expression.
func (f FEI) Root() bool {
	return f.ExpressionID == "" || f.ExpressionID == "0"
}

// Child derives the FEI of the childIndex-th child of this expression.
// The child's expression-id extends the parent's dotted path, matching
// spec.md §3's "expid encodes the dotted path from root".
func (f FEI) Child(childIndex int) FEI {
	eid := fmt.Sprintf("%d", childIndex)
	if f.ExpressionID != "" {
		eid = f.ExpressionID + "." + eid
	}
	return FEI{
		WorkflowID:   f.WorkflowID,
		ExpressionID: eid,
		ChildID:      childIndex,
	}
}
