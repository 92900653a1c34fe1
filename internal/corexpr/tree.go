package corexpr

import "context"

// propagateToParent splices this node's updated_tree back into the
// parent's tree, spec.md §4.2. It is a no-op if this node has no
// updated_tree or no parent.
func (b *Base) propagateToParent(ctx context.Context) error {
	if b.rec.UpdatedTree == nil || b.rec.ParentID == nil {
		return nil
	}

	parent, err := b.deps.Storage.Load(ctx, *b.rec.ParentID)
	if err != nil {
		return err
	}

	if parent.UpdatedTree == nil {
		clone := parent.OriginalTree.Clone()
		parent.UpdatedTree = &clone
	}

	idx := b.rec.Fei.ChildID
	if idx < 0 || idx >= len(parent.UpdatedTree.Children) {
		return nil
	}
	parent.UpdatedTree.Children[idx] = *b.rec.UpdatedTree

	return b.deps.Storage.Save(ctx, parent)
}
