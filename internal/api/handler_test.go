package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lumastack/retail-copilot/internal/capability"
	"github.com/lumastack/retail-copilot/internal/orchestrator"
	"github.com/lumastack/retail-copilot/internal/safety"
	"github.com/lumastack/retail-copilot/internal/warehouse"
	"go.uber.org/zap"
)

// newTestHandler wires a model-less pipeline: keyword classification, static
// knowledge answers, simulated query data. Everything runs offline.
func newTestHandler() *Handler {
	logger := zap.NewNop()
	filter := safety.NewFilter(nil, 0.5, logger)
	sim := warehouse.NewSimulator(1, logger)

	knowledge := capability.NewKnowledge(nil, nil, logger)
	query := capability.NewQuery(nil, nil, nil, sim, capability.QueryConfig{
		Budget:   warehouse.Budget{MaxBytesBilled: 1 << 30, Timeout: time.Second},
		RowLimit: 1000,
	}, logger)

	supervisor := orchestrator.NewSupervisor(nil, filter, knowledge, query, 0, logger)
	return NewHandler(supervisor, logger)
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(newTestHandler().Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["service"] != "retail-copilot" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestListCapabilities(t *testing.T) {
	srv := httptest.NewServer(newTestHandler().Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/capabilities")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var caps []map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&caps); err != nil {
		t.Fatal(err)
	}
	if len(caps) != 2 {
		t.Fatalf("got %d capabilities, want 2", len(caps))
	}
	names := map[string]bool{}
	for _, c := range caps {
		names[c["name"]] = true
	}
	if !names["knowledge"] || !names["query"] {
		t.Errorf("missing capability names: %v", names)
	}
}

func TestProcessQuery(t *testing.T) {
	srv := httptest.NewServer(newTestHandler().Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/query", "application/json",
		strings.NewReader(`{"question": "What were our total sales last quarter?"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}

	var body struct {
		Steps []orchestrator.Step `json:"steps"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Steps) < 3 {
		t.Fatalf("got %d steps, expected a full trace", len(body.Steps))
	}
	if body.Steps[0].Role != orchestrator.RoleUser {
		t.Errorf("first step role %q, want user", body.Steps[0].Role)
	}
	if body.Steps[0].Content != "What were our total sales last quarter?" {
		t.Errorf("user step should echo the question, got %q", body.Steps[0].Content)
	}
	if last := body.Steps[len(body.Steps)-1]; last.Role != orchestrator.RoleSynthesis {
		t.Errorf("last step role %q, want synthesis", last.Role)
	}
	for _, step := range body.Steps {
		if step.ID == "" {
			t.Errorf("%s step has no ID", step.Role)
		}
		if step.Timestamp.IsZero() {
			t.Errorf("%s step has no timestamp", step.Role)
		}
	}
}

func TestProcessQueryValidation(t *testing.T) {
	srv := httptest.NewServer(newTestHandler().Router())
	defer srv.Close()

	for _, payload := range []string{`{}`, `{"question": "   "}`, `not json`} {
		resp, err := http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("payload %q: got status %d, want 400", payload, resp.StatusCode)
		}
	}
}
