package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mark3labs/apiguard/apierrors"
	"github.com/mark3labs/apiguard/events"
	cli "github.com/mark3labs/apiguard/internal/cli"
	"github.com/mark3labs/apiguard/observe"
)

// Swagger 2.0 document; the loader converts it to OpenAPI 3 before use.
const swaggerSpec = "" +
	"swagger: '2.0'\n" +
	"info:\n" +
	"  title: E2E Sample\n" +
	"  version: '1.0.0'\n" +
	"host: HOST\n" +
	"basePath: /api\n" +
	"schemes: [http]\n" +
	"paths:\n" +
	"  /pets:\n" +
	"    get:\n" +
	"      operationId: listPets\n" +
	"      tags: [read]\n" +
	"      produces: [application/json]\n" +
	"      responses:\n" +
	"        200:\n" +
	"          description: ok\n" +
	"          schema:\n" +
	"            type: array\n" +
	"            items:\n" +
	"              type: string\n"

// petsServer answers GET /api/pets with body.
func petsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pets" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeTempSpec(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "swagger.yaml")
	content := strings.ReplaceAll(swaggerSpec, "HOST", strings.TrimPrefix(srv.URL, "http://"))
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return p
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := cli.NewRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

type callOutput struct {
	Operation string `json:"operation"`
	Status    int    `json:"status"`
	Data      any    `json:"data"`
}

func TestE2E_Call_SwaggerV2(t *testing.T) {
	t.Parallel()
	srv := petsServer(t, `["rex","mia"]`)
	spec := writeTempSpec(t, srv)

	out, err := runCLI(t, "call", "--input", spec, "--operation", "listPets", "--throw")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var got callOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if got.Operation != "read.listPets" || got.Status != 200 {
		t.Fatalf("unexpected output: %+v", got)
	}
	if fmt.Sprint(got.Data) != "[rex mia]" {
		t.Fatalf("unexpected data: %v", got.Data)
	}
}

func TestE2E_Call_InvalidResponse(t *testing.T) {
	t.Parallel()
	srv := petsServer(t, `[1,2]`)
	spec := writeTempSpec(t, srv)

	// Without --throw the failure is reported through events and logs only.
	if _, err := runCLI(t, "call", "--input", spec, "--operation", "listPets"); err != nil {
		t.Fatalf("lenient call: %v", err)
	}

	_, err := runCLI(t, "call", "--input", spec, "--operation", "listPets", "--throw")
	var verr *apierrors.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %T: %v", err, err)
	}
	if verr.Path != "0" {
		t.Fatalf("unexpected path %q", verr.Path)
	}
	if !strings.Contains(verr.Error(), "(operation read.listPets)") {
		t.Fatalf("error should name the operation: %v", verr)
	}
}

func TestE2E_Call_FromConfigFile(t *testing.T) {
	t.Parallel()
	srv := petsServer(t, `[1]`)
	spec := writeTempSpec(t, srv)

	cfgPath := filepath.Join(t.TempDir(), "apiguard.yaml")
	cfg := fmt.Sprintf("input: %s\noperation: listPets\nthrowErrors: true\ntimeout: 5s\n", spec)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := runCLI(t, "--config", cfgPath, "call"); !errors.Is(err, apierrors.ErrValidation) {
		t.Fatalf("expected validation error from config-driven call, got %v", err)
	}
	if _, err := runCLI(t, "--config", cfgPath, "call", "--throw=false"); err != nil {
		t.Fatalf("flag should override config: %v", err)
	}
}

// TestE2E_Call_ForwardsEventsToRedis needs a Redis server. Set
// APIGUARD_E2E_REDIS_ADDR to run it.
func TestE2E_Call_ForwardsEventsToRedis(t *testing.T) {
	addr := os.Getenv("APIGUARD_E2E_REDIS_ADDR")
	if addr == "" {
		t.Skip("APIGUARD_E2E_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := observe.DialRedis(ctx, addr)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	channel := fmt.Sprintf("apiguard:e2e:%d", time.Now().UnixNano())
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	srv := petsServer(t, `["rex"]`)
	spec := writeTempSpec(t, srv)
	if _, err := runCLI(t, "call", "--input", spec, "--operation", "listPets",
		"--redis-addr", addr, "--redis-channel", channel); err != nil {
		t.Fatalf("call: %v", err)
	}

	var kinds []events.Kind
	for len(kinds) < 3 {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			t.Fatalf("receive after %v: %v", kinds, err)
		}
		kinds = append(kinds, decodeKind(t, msg))
	}
	want := []events.Kind{events.BeforeValidation, events.ValidationSuccess, events.AfterValidation}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("kinds: got %v, want %v", kinds, want)
	}
}

func decodeKind(t *testing.T, msg *redis.Message) events.Kind {
	t.Helper()
	var m observe.Message
	if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
		t.Fatalf("decode %q: %v", msg.Payload, err)
	}
	if m.Operation != "read.listPets" {
		t.Fatalf("unexpected operation %q", m.Operation)
	}
	return m.Kind
}
