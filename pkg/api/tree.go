package api

// Tree is the (name, attributes, children) triple that represents one node
// of a process definition, as applied to a FlowExpression.
//
// Attributes map string keys to scalar-or-nil values; a nil-valued key is
// the node's "text" argument (spec.md §3).
type Tree struct {
	Name       string
	Attributes map[string]any
	Children   []Tree
}

// Clone returns a deep copy of t. Children and Attributes are copied
// recursively so that edits to the clone never alias the original — this
// is the "fulldup" semantics spec.md §9 requires of original_tree/updated_tree.
func (t Tree) Clone() Tree {
	out := Tree{Name: t.Name}
	if t.Attributes != nil {
		out.Attributes = make(map[string]any, len(t.Attributes))
		for k, v := range t.Attributes {
			out.Attributes[k] = v
		}
	}
	if t.Children != nil {
		out.Children = make([]Tree, len(t.Children))
		for i, c := range t.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// Attr returns the named attribute and whether it was present.
func (t Tree) Attr(name string) (any, bool) {
	if t.Attributes == nil {
		return nil, false
	}
	v, ok := t.Attributes[name]
	return v, ok
}

// AttrString returns the named attribute coerced to a string, or "" if
// absent or not a string.
func (t Tree) AttrString(name string) string {
	v, ok := t.Attr(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// AttrBool returns whether the named attribute is present and "truthy":
// present, non-nil, not the bool false, and not the strings "false" or "".
// Unlike the if/unless guard (Condition), it does no ${…} substitution and
// treats the string "0" as truthy.
func (t Tree) AttrBool(name string) bool {
	v, ok := t.Attr(name)
	if !ok || v == nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != "" && x != "false"
	default:
		return true
	}
}

// Child returns the i-th child tree, or the zero Tree if out of range.
func (t Tree) Child(i int) (Tree, bool) {
	if i < 0 || i >= len(t.Children) {
		return Tree{}, false
	}
	return t.Children[i], true
}
