package idreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLookupRemove(t *testing.T) {
	t.Parallel()

	r := New()
	files := r.RegisterType(nil)

	id, err := r.Register(files, "file-a")
	require.NoError(t, err)
	require.NotEqual(t, Invalid, id)

	obj, ok := r.Lookup(files, id)
	require.True(t, ok)
	assert.Equal(t, "file-a", obj)

	obj, ok = r.Remove(files, id)
	require.True(t, ok)
	assert.Equal(t, "file-a", obj)

	_, ok = r.Lookup(files, id)
	assert.False(t, ok)
}

func TestUnknownType(t *testing.T) {
	t.Parallel()

	r := New()
	_, err := r.Register(Type(42), "x")
	assert.ErrorIs(t, err, ErrUnknownType)

	_, ok := r.Lookup(Type(42), 1)
	assert.False(t, ok)
}

func TestIDsAreUniqueAcrossTypes(t *testing.T) {
	t.Parallel()

	r := New()
	a := r.RegisterType(nil)
	b := r.RegisterType(nil)

	id1, err := r.Register(a, 1)
	require.NoError(t, err)
	id2, err := r.Register(b, 2)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

func TestTerminateAllReportsReleased(t *testing.T) {
	t.Parallel()

	r := New()
	files := r.RegisterType(nil)
	props := r.RegisterType(nil)

	_, err := r.Register(files, "f1")
	require.NoError(t, err)
	_, err = r.Register(files, "f2")
	require.NoError(t, err)
	_, err = r.Register(props, "p1")
	require.NoError(t, err)

	require.Equal(t, 3, r.TotalCount())
	assert.Equal(t, 3, r.TerminateAll())
	assert.Equal(t, 0, r.TotalCount())
	assert.Equal(t, 0, r.TerminateAll())
}

func TestTerminateAllInvokesDiscard(t *testing.T) {
	t.Parallel()

	r := New()
	var discarded []any
	files := r.RegisterType(func(id ID, obj any) {
		discarded = append(discarded, obj)
	})

	_, err := r.Register(files, "f1")
	require.NoError(t, err)

	r.TerminateAll()
	assert.Equal(t, []any{"f1"}, discarded)
}
