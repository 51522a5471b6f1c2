package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/apiguard/apierrors"
	"github.com/mark3labs/apiguard/model"
	"github.com/mark3labs/apiguard/schema"
)

func TestResolve_SingleMatch(t *testing.T) {
	ok := model.New("Ok", schema.Object(schema.Field("ok", schema.Boolean())))
	c := Catalog{Operation: "status.get", Declared: []Response{{Status: 200, Model: ok}}}

	r, err := c.Resolve(200, map[string]any{"ok": true})
	require.NoError(t, err)
	assert.Equal(t, 200, r.Status)
	assert.Equal(t, "Ok", r.Model.Name)
	assert.Equal(t, "status.get", r.Model.Operation())
}

func TestResolve_NoMatchAlwaysFails(t *testing.T) {
	c := Catalog{
		Operation: "status.get",
		Declared:  []Response{{Status: 200, Model: model.New("Ok", schema.Unknown())}},
	}

	_, err := c.Resolve(404, map[string]any{"message": "gone"})
	require.ErrorIs(t, err, apierrors.ErrUnmatchedResponse)

	var uerr *apierrors.UnmatchedResponseError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, 404, uerr.Status)
	assert.Equal(t, "status.get", uerr.Operation)
	assert.Equal(t, `[status.get] unexpected response without declaration. Status: 404, data: {"message":"gone"}`, uerr.Error())
}

func TestResolve_DuplicateStatusesIntersect(t *testing.T) {
	a := model.New("A", schema.Object(schema.Field("a", schema.String())))
	b := model.New("B", schema.Object(schema.Field("b", schema.String())))

	r, err := Resolve("things.get", 200, nil, []Response{{Status: 200, Model: a}}, []Response{{Status: 200, Model: b}})
	require.NoError(t, err)
	assert.Equal(t, "A | B", r.Model.Name)
	assert.Equal(t, "things.get", r.Model.Operation())

	v := model.NewValidator(nil)
	ctx := context.Background()
	assert.False(t, v.Assert(ctx, r.Model, map[string]any{"a": "x"}, false, false))
	assert.False(t, v.Assert(ctx, r.Model, map[string]any{"b": "y"}, false, false))
	assert.True(t, v.Assert(ctx, r.Model, map[string]any{"a": "x", "b": "y"}, false, false))
}

func TestResolve_GlobalOnly(t *testing.T) {
	errModel := model.New("ServerError", schema.Object(schema.Field("message", schema.String())))
	r, err := Resolve("things.get", 500, nil, nil, []Response{{Status: 500, Model: errModel}})
	require.NoError(t, err)
	assert.Equal(t, "ServerError", r.Model.Name)
	assert.Equal(t, "things.get", r.Model.Operation())
	assert.Empty(t, errModel.Operation(), "shared global models are not relabelled")
}

func TestAcceptsAndStatuses(t *testing.T) {
	m := model.New("Any", schema.Unknown())
	c := Catalog{
		Declared: []Response{{Status: 404, Model: m}, {Status: 200, Model: m}, {Status: 200, Model: m}},
		Global:   []Response{{Status: 500, Model: m}},
	}

	assert.True(t, c.Accepts(200))
	assert.True(t, c.Accepts(404))
	assert.False(t, c.Accepts(500))
	assert.Equal(t, []int{200, 404}, c.Statuses())
}

func TestLabel(t *testing.T) {
	owned := model.New("Owned", schema.Unknown())
	owned.SetOperation("other.op")
	fresh := model.New("Fresh", schema.Unknown())

	conflicts := Label("this.op", []Response{{Status: 200, Model: fresh}, {Status: 404, Model: owned}})
	assert.Equal(t, []string{"Owned"}, conflicts)
	assert.Equal(t, "this.op", fresh.Operation())
	assert.Equal(t, "other.op", owned.Operation())
}
