package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOperation(t *testing.T) {
	tests := []struct {
		name    string
		fields  Fields
		op      BlockOperation
		want    any
		wantErr bool
	}{
		{
			name:   "scalar replace",
			fields: Fields{"title": "a"},
			op:     BlockOperation{Field: "title", Inserted: []any{"b"}},
			want:   "b",
		},
		{
			name:    "scalar replace rejects offset",
			fields:  Fields{"title": "a"},
			op:      BlockOperation{Field: "title", Offset: 1, Inserted: []any{"b"}},
			wantErr: true,
		},
		{
			name:   "array insert at head",
			fields: Fields{"entries": []any{"x", "y"}},
			op:     BlockOperation{Field: "entries", Offset: 0, DeleteCount: 0, Inserted: []any{"w"}},
			want:   []any{"w", "x", "y"},
		},
		{
			name:   "array delete middle",
			fields: Fields{"entries": []any{"x", "y", "z"}},
			op:     BlockOperation{Field: "entries", Offset: 1, DeleteCount: 1},
			want:   []any{"x", "z"},
		},
		{
			name:    "array out of range",
			fields:  Fields{"entries": []any{"x"}},
			op:      BlockOperation{Field: "entries", Offset: 5, DeleteCount: 0},
			wantErr: true,
		},
		{
			name:    "unknown field",
			fields:  Fields{"entries": []any{"x"}},
			op:      BlockOperation{Field: "missing"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Block{Id: "b1", Fields: tt.fields}
			err := ApplyOperation(b, tt.op)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Fields[tt.op.Field])
		})
	}
}

func TestApplyTransform(t *testing.T) {
	base := &Block{Id: "b1", Fields: Fields{"n": 1}}

	t.Run("insert over existing is invariant violation", func(t *testing.T) {
		_, err := ApplyTransform(base, Transform{Insert: &Block{Id: "b1", Fields: Fields{}}})
		assert.ErrorIs(t, err, ErrInvariant)
	})

	t.Run("delete subsumes", func(t *testing.T) {
		got, err := ApplyTransform(base, Transform{Delete: true, Updates: []BlockOperation{{Field: "n", Inserted: []any{2}}}})
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update on absent block with no insert is invariant violation", func(t *testing.T) {
		_, err := ApplyTransform(nil, Transform{Updates: []BlockOperation{{Field: "n", Inserted: []any{2}}}})
		assert.ErrorIs(t, err, ErrInvariant)
	})

	t.Run("insert then update", func(t *testing.T) {
		got, err := ApplyTransform(nil, Transform{
			Insert:  &Block{Id: "b2", Fields: Fields{"n": 1}},
			Updates: []BlockOperation{{Field: "n", Inserted: []any{2}}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, got.Fields["n"])
	})

	t.Run("clone isolates existing from mutation", func(t *testing.T) {
		orig := &Block{Id: "b3", Fields: Fields{"n": 1}}
		got, err := ApplyTransform(orig, Transform{Updates: []BlockOperation{{Field: "n", Inserted: []any{99}}}})
		require.NoError(t, err)
		assert.Equal(t, 99, got.Fields["n"])
		assert.Equal(t, 1, orig.Fields["n"])
	})
}

func TestConcatTransform(t *testing.T) {
	t.Run("later delete subsumes earlier insert and updates", func(t *testing.T) {
		base := Transform{Insert: &Block{Id: "b1"}, Updates: []BlockOperation{{Field: "n"}}}
		next := Transform{Delete: true}
		got := ConcatTransform(base, next)
		assert.True(t, got.Delete)
		assert.Nil(t, got.Insert)
		assert.Empty(t, got.Updates)
	})

	t.Run("later insert wins, updates concatenate in order", func(t *testing.T) {
		earlyIns := &Block{Id: "b1", Fields: Fields{"n": 0}}
		lateIns := &Block{Id: "b1", Fields: Fields{"n": 1}}
		base := Transform{Insert: earlyIns, Updates: []BlockOperation{{Field: "a"}}}
		next := Transform{Insert: lateIns, Updates: []BlockOperation{{Field: "b"}}}
		got := ConcatTransform(base, next)
		assert.Same(t, lateIns, got.Insert)
		require.Len(t, got.Updates, 2)
		assert.Equal(t, "a", got.Updates[0].Field)
		assert.Equal(t, "b", got.Updates[1].Field)
	})
}

func TestConcatTransformsAssociativity(t *testing.T) {
	mk := func(id BlockId, n int) Transforms {
		t := EmptyTransforms()
		AddUpdate(t, id, BlockOperation{Field: "n", Inserted: []any{n}})
		return t
	}
	a := mk("b1", 1)
	b := mk("b1", 2)
	c := mk("b1", 3)

	left := ConcatTransforms(ConcatTransforms(a, b), c)
	right := ConcatTransforms(a, ConcatTransforms(b, c))

	assert.Equal(t, TransformForBlockId(left, "b1").Updates, TransformForBlockId(right, "b1").Updates)
}

func TestBlockIdsForTransforms(t *testing.T) {
	tr := EmptyTransforms()
	AddInsert(tr, &Block{Id: "b1"})
	AddUpdate(tr, "b2", BlockOperation{Field: "n"})
	AddDelete(tr, "b3")

	ids := BlockIdsForTransforms(tr)
	assert.ElementsMatch(t, []BlockId{"b1", "b2", "b3"}, ids)
}

func TestTypeRegistry(t *testing.T) {
	reg := NewTypeRegistry()
	got := reg.Register("HDR", "Header")
	found, ok := reg.Lookup("HDR")
	require.True(t, ok)
	assert.Equal(t, got, found)

	_, ok = reg.Lookup("NOPE")
	assert.False(t, ok)
}
