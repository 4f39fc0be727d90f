package block

import "fmt"

// Transform describes everything a single transaction does to a single
// block: optionally insert it fresh, apply zero or more field operations to
// it, or delete it outright. Updates may be non-empty only when Insert is
// set (describing the same logical transaction's initial state) or when the
// block already exists; Delete, when set, subsumes Insert and Updates.
type Transform struct {
	Insert  *Block
	Updates []BlockOperation
	Delete  bool
}

// Transforms is a whole transaction's worth of per-block Transform values.
type Transforms struct {
	Inserts map[BlockId]*Block
	Updates map[BlockId][]BlockOperation
	Deletes map[BlockId]struct{}
}

// EmptyTransforms returns a Transforms with no blocks affected.
func EmptyTransforms() Transforms {
	return Transforms{
		Inserts: make(map[BlockId]*Block),
		Updates: make(map[BlockId][]BlockOperation),
		Deletes: make(map[BlockId]struct{}),
	}
}

// BlockIdsForTransforms returns the set of block ids touched by t, in no
// particular order.
func BlockIdsForTransforms(t Transforms) []BlockId {
	seen := make(map[BlockId]struct{}, len(t.Inserts)+len(t.Updates)+len(t.Deletes))
	for id := range t.Inserts {
		seen[id] = struct{}{}
	}
	for id := range t.Updates {
		seen[id] = struct{}{}
	}
	for id := range t.Deletes {
		seen[id] = struct{}{}
	}
	ids := make([]BlockId, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

// TransformForBlockId extracts the Transform that applies to a single
// block id within t.
func TransformForBlockId(t Transforms, id BlockId) Transform {
	var out Transform
	if ins, ok := t.Inserts[id]; ok {
		out.Insert = ins
	}
	if ops, ok := t.Updates[id]; ok {
		out.Updates = ops
	}
	if _, ok := t.Deletes[id]; ok {
		out.Delete = true
	}
	return out
}

// AddInsert stages the insertion of b into t.
func AddInsert(t Transforms, b *Block) {
	t.Inserts[b.Id] = b
	delete(t.Deletes, b.Id)
}

// AddUpdate appends op to the updates staged for id in t.
func AddUpdate(t Transforms, id BlockId, op BlockOperation) {
	t.Updates[id] = append(t.Updates[id], op)
}

// AddDelete stages the deletion of id in t, discarding any insert/updates
// already staged for it (a delete subsumes them).
func AddDelete(t Transforms, id BlockId) {
	t.Deletes[id] = struct{}{}
	delete(t.Inserts, id)
	delete(t.Updates, id)
}

// ApplyOperationToTransform is a convenience used by callers staging
// operations one at a time onto an existing Transforms value for id.
func ApplyOperationToTransform(t Transforms, id BlockId, op BlockOperation) {
	AddUpdate(t, id, op)
}

// ApplyTransform returns the block that results from applying t on top of
// existing (existing may be nil, meaning the block is not currently
// materialized). A nil, nil result means the block does not exist after
// applying t (either it was deleted, or it never existed and t has no
// insert for it). existing itself is never modified.
func ApplyTransform(existing *Block, t Transform) (*Block, error) {
	if t.Delete {
		return nil, nil
	}

	cur := existing.Clone()
	if t.Insert != nil {
		if cur != nil {
			return nil, fmt.Errorf("%w: insert over existing block %s", ErrInvariant, t.Insert.Id)
		}
		cur = t.Insert.Clone()
	}

	if cur == nil {
		if len(t.Updates) > 0 {
			return nil, fmt.Errorf("%w: update on a block with no insert and no prior state", ErrInvariant)
		}
		return nil, nil
	}

	for _, op := range t.Updates {
		if err := ApplyOperation(cur, op); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// ConcatTransform combines an earlier Transform (base) with a later one
// (next) addressing the same block, following merge-left semantics: a
// later delete subsumes everything earlier; otherwise the later insert
// wins on collision, and updates concatenate in chronological order.
func ConcatTransform(base, next Transform) Transform {
	if next.Delete {
		return Transform{Delete: true}
	}

	out := Transform{Insert: base.Insert}
	if next.Insert != nil {
		out.Insert = next.Insert
	}
	if len(base.Updates) > 0 || len(next.Updates) > 0 {
		out.Updates = make([]BlockOperation, 0, len(base.Updates)+len(next.Updates))
		out.Updates = append(out.Updates, base.Updates...)
		out.Updates = append(out.Updates, next.Updates...)
	}
	return out
}

// ConcatTransforms merges next on top of base across every block id either
// one touches.
func ConcatTransforms(base, next Transforms) Transforms {
	out := EmptyTransforms()
	for id, b := range base.Inserts {
		out.Inserts[id] = b
	}
	for id, ops := range base.Updates {
		out.Updates[id] = append([]BlockOperation{}, ops...)
	}
	for id := range base.Deletes {
		out.Deletes[id] = struct{}{}
	}

	for _, id := range BlockIdsForTransforms(next) {
		merged := ConcatTransform(TransformForBlockId(out, id), TransformForBlockId(next, id))
		delete(out.Inserts, id)
		delete(out.Updates, id)
		delete(out.Deletes, id)
		if merged.Delete {
			out.Deletes[id] = struct{}{}
			continue
		}
		if merged.Insert != nil {
			out.Inserts[id] = merged.Insert
		}
		if len(merged.Updates) > 0 {
			out.Updates[id] = merged.Updates
		}
	}
	return out
}

// MergeTransforms is an alias of ConcatTransforms kept for call sites that
// read more naturally merging two independently-staged Transforms rather
// than concatenating a chronological sequence.
func MergeTransforms(a, b Transforms) Transforms {
	return ConcatTransforms(a, b)
}
