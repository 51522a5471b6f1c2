package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/apiguard/apierrors"
)

const petsSpecYAML = `openapi: 3.0.0
info:
  title: Pets
  version: "1.0.0"
servers:
  - url: SERVER/v1
paths:
  /pets:
    post:
      operationId: createPet
      tags: [pets]
      requestBody:
        required: true
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/Pet'
      responses:
        "201":
          description: created
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
  /pets/{petId}:
    get:
      operationId: getPet
      tags: [pets]
      parameters:
        - in: path
          name: petId
          required: true
          schema:
            type: string
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Pet'
        "404":
          description: not found
          content:
            application/json:
              schema:
                $ref: '#/components/schemas/Problem'
components:
  schemas:
    Pet:
      type: object
      required: [id, name]
      properties:
        id:
          type: integer
        name:
          type: string
    Problem:
      type: object
      required: [message]
      properties:
        message:
          type: string
`

type petsAPI struct {
	srv  *httptest.Server
	spec string
	hits atomic.Int32
}

func newPetsAPI(t *testing.T) *petsAPI {
	t.Helper()
	api := &petsAPI{}
	api.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/pets/7":
			_, _ = w.Write([]byte(`{"id":7,"name":"Rex","owner":"sam"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/pets/404":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"gone"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/pets":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.Copy(w, r.Body)
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"boom"}`))
		}
	}))
	t.Cleanup(api.srv.Close)

	api.spec = filepath.Join(t.TempDir(), "openapi.yaml")
	content := strings.ReplaceAll(petsSpecYAML, "SERVER", api.srv.URL)
	require.NoError(t, os.WriteFile(api.spec, []byte(content), 0o600))
	return api
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func decodeCallOutput(t *testing.T, out string) callOutput {
	t.Helper()
	var got callOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	return got
}

func TestCallPipeline_ValidResponse(t *testing.T) {
	api := newPetsAPI(t)

	out, err := runCLI(t, "call", "--input", api.spec, "--operation", "getPet", "--param", "petId=7")
	require.NoError(t, err)
	got := decodeCallOutput(t, out)
	assert.Equal(t, "pets.getPet", got.Operation)
	assert.Equal(t, 200, got.Status)
	assert.Equal(t, map[string]any{"id": float64(7), "name": "Rex", "owner": "sam"}, got.Data)
}

func TestCallPipeline_MetricsWrittenToStderr(t *testing.T) {
	api := newPetsAPI(t)

	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"call", "--input", api.spec, "--operation", "getPet", "--param", "petId=7", "--metrics"})
	require.NoError(t, root.Execute())

	assert.Equal(t, "pets.getPet", decodeCallOutput(t, out.String()).Operation)
	metrics := errOut.String()
	assert.Contains(t, metrics, "# TYPE apiguard_validation_events_total counter")
	assert.Contains(t, metrics, `kind="validation-success"`)
	assert.Contains(t, metrics, `operation="pets.getPet"`)
	assert.NotContains(t, metrics, "apiguard_validation_failures_total{")
}

func TestCallPipeline_StrictStripsExtraProperties(t *testing.T) {
	api := newPetsAPI(t)

	out, err := runCLI(t, "call", "--input", api.spec, "--operation", "getPet", "--param", "petId=7", "--strict")
	require.NoError(t, err)
	got := decodeCallOutput(t, out)
	assert.Equal(t, map[string]any{"id": float64(7), "name": "Rex"}, got.Data)

	_, err = runCLI(t, "call", "--input", api.spec, "--operation", "getPet", "--param", "petId=7", "--strict", "--throw")
	assert.ErrorIs(t, err, apierrors.ErrExtraFields)
}

func TestCallPipeline_DeclaredErrorStatus(t *testing.T) {
	api := newPetsAPI(t)

	out, err := runCLI(t, "call", "--input", api.spec, "--operation", "getPet", "--param", "petId=404", "--throw")
	require.NoError(t, err)
	got := decodeCallOutput(t, out)
	assert.Equal(t, 404, got.Status)
	assert.Equal(t, map[string]any{"message": "gone"}, got.Data)
}

func TestCallPipeline_UndeclaredStatus(t *testing.T) {
	api := newPetsAPI(t)

	_, err := runCLI(t, "call", "--input", api.spec, "--operation", "getPet", "--param", "petId=1")
	require.Error(t, err)
	var terr *apierrors.TransportError
	require.True(t, errors.As(err, &terr), "got %T: %v", err, err)
	assert.Equal(t, 500, terr.Status)
	assert.Contains(t, err.Error(), "MODEL NOT FOUND - Unexpected response received from operation pets.getPet: 500")
}

func TestCallPipeline_InvalidPayloadIsNotSent(t *testing.T) {
	api := newPetsAPI(t)

	_, err := runCLI(t, "call", "--input", api.spec, "--operation", "createPet", "--body", `{"name":"Rex"}`, "--throw")
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrValidation)
	assert.Zero(t, api.hits.Load())

	out, err := runCLI(t, "call", "--input", api.spec, "--operation", "createPet", "--body", `{"id":3,"name":"Rex"}`, "--throw")
	require.NoError(t, err)
	got := decodeCallOutput(t, out)
	assert.Equal(t, 201, got.Status)
	assert.Equal(t, int32(1), api.hits.Load())
}

func TestCallPipeline_UsageErrors(t *testing.T) {
	api := newPetsAPI(t)

	_, err := runCLI(t, "call", "--input", api.spec, "--operation", "getPet")
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, err.Error(), "petId")

	_, err = runCLI(t, "call", "--input", api.spec, "--operation", "deletePet")
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, err.Error(), "available: createPet, getPet")

	_, err = runCLI(t, "call", "--input", filepath.Join(t.TempDir(), "missing.yaml"), "--operation", "getPet")
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, err.Error(), "spec:")
	assert.Zero(t, api.hits.Load())
}

func TestCheckPipeline(t *testing.T) {
	api := newPetsAPI(t)

	out, err := runCLI(t, "check", "--input", api.spec, "--operation", "getPet", "--data", `{"id":1,"name":"Rex"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "getPet 200: valid against Pet")

	out, err = runCLI(t, "check", "--input", api.spec, "--operation", "getPet", "--data", `{"id":1,"name":"Rex","x":1}`, "--strict", "--throw=false")
	require.Error(t, err, out)
	assert.ErrorIs(t, err, apierrors.ErrExtraFields)

	_, err = runCLI(t, "check", "--input", api.spec, "--operation", "getPet", "--data", `{"id":"1","name":"Rex"}`)
	var verr *apierrors.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "id", verr.Path)
	assert.Equal(t, "getPet", verr.Operation)

	_, err = runCLI(t, "check", "--input", api.spec, "--operation", "getPet", "--status", "500", "--data", `{"message":"boom"}`)
	assert.ErrorIs(t, err, apierrors.ErrUnmatchedResponse)
	assert.Zero(t, api.hits.Load())
}

func TestListPipeline(t *testing.T) {
	api := newPetsAPI(t)

	out, err := runCLI(t, "list", "--input", api.spec)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "OPERATION"))
	assert.Contains(t, lines[1], "createPet")
	assert.Contains(t, lines[2], "getPet")
	assert.Contains(t, lines[2], "200,404")
}
