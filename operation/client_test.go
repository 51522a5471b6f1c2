package operation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/apiguard/apierrors"
	"github.com/mark3labs/apiguard/catalog"
	"github.com/mark3labs/apiguard/model"
	"github.com/mark3labs/apiguard/schema"
)

func TestAddPath(t *testing.T) {
	base := baseURL(t, "http://api.test/v1/")
	tests := []struct {
		parts []string
		want  string
	}{
		{nil, "http://api.test/v1/"},
		{[]string{"pets"}, "http://api.test/v1/pets"},
		{[]string{"/pets/", "/7"}, "http://api.test/v1/pets/7"},
		{[]string{"", "pets"}, "http://api.test/v1/pets"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AddPath(base, tt.parts...).String())
	}
	assert.Equal(t, "http://api.test/v1/", base.String(), "input is not modified")
}

func TestAddEscapedPath(t *testing.T) {
	base := baseURL(t, "http://api.test/v1/")

	u := AddEscapedPath(base, "/files/a%2Fb")
	assert.Equal(t, "http://api.test/v1/files/a%2Fb", u.String())
	assert.Equal(t, "/v1/files/a/b", u.Path)

	assert.Equal(t, "http://api.test/v1/", AddEscapedPath(base, "/").String())
	assert.Equal(t, "http://api.test/v1/", base.String(), "input is not modified")
}

type petOpts struct {
	ID int
}

func TestClient_RegisterAndCall(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"name":"Rex","owner":"sam"}`))
	}))
	defer srv.Close()

	pet := model.New("Pet", schema.Object(schema.Field("id", schema.Integer()), schema.Field("name", schema.String())))
	client := NewClient(NewExecutor(baseURL(t, srv.URL+"/api")), model.Options{StrictTypes: true})
	pets := client.Resource("pets", "/pets")

	get := Register(pets, "get", &Operation[petOpts]{
		Method: http.MethodGet,
		URL: func(base *url.URL, o petOpts) *url.URL {
			return AddPath(base, strconv.Itoa(o.ID))
		},
		Responses: []catalog.Response{{Status: 200, Model: pet}},
	})
	assert.Equal(t, "pets.get", get.Op.Name())
	assert.Equal(t, "pets.get", pet.Operation())

	res, err := get.Call(context.Background(), petOpts{ID: 7}, model.Override{})
	require.NoError(t, err)
	assert.Equal(t, "/api/pets/7", gotPath)
	assert.Equal(t, map[string]any{"id": float64(7), "name": "Rex"}, res.Data)

	lenient := false
	res, err = get.Call(context.Background(), petOpts{ID: 7}, model.Override{StrictTypes: &lenient})
	require.NoError(t, err)
	assert.Contains(t, res.Data, "owner")
}

func TestClient_ThrowOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"seven"}`))
	}))
	defer srv.Close()

	client := NewClient(NewExecutor(baseURL(t, srv.URL)), model.Options{})
	ep := Register(client.Resource("pets", ""), "get", &Operation[petOpts]{
		Responses: []catalog.Response{{Status: 200, Model: model.New("Pet", schema.Object(schema.Field("id", schema.Integer())))}},
	})

	_, err := ep.Call(context.Background(), petOpts{}, model.Override{})
	require.NoError(t, err)

	throw := true
	_, err = ep.Call(context.Background(), petOpts{}, model.Override{ThrowErrors: &throw})
	assert.ErrorIs(t, err, apierrors.ErrValidation)
}

func TestOperation_NameIsWriteOnce(t *testing.T) {
	op := &Operation[petOpts]{}
	assert.True(t, op.SetName("pets.get"))
	assert.False(t, op.SetName("pets.list"))
	assert.Equal(t, "pets.get", op.Name())
}
