//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("COPILOT_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

type step struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Metadata *struct {
		ToolUsed       string   `json:"tool_used,omitempty"`
		Confidence     float64  `json:"confidence,omitempty"`
		SQLQuery       string   `json:"sql_query,omitempty"`
		DelegationPlan []string `json:"delegation_plan,omitempty"`
	} `json:"metadata,omitempty"`
}

// ask POSTs a question and returns the full trace.
func ask(t *testing.T, question string) []step {
	t.Helper()

	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Post(baseURL+"/api/query", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/query: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	var payload struct {
		Steps []step `json:"steps"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, string(raw))
	}
	return payload.Steps
}

func lastStep(steps []step) step {
	return steps[len(steps)-1]
}

func TestHealth(t *testing.T) {
	resp, err := http.Get(baseURL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d", resp.StatusCode)
	}
}

func TestCapabilitiesListed(t *testing.T) {
	resp, err := http.Get(baseURL + "/api/capabilities")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"knowledge", "query"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("capabilities missing %q: %s", want, raw)
		}
	}
}

func TestSalesQuestion(t *testing.T) {
	steps := ask(t, "What were our total sales last quarter?")
	if len(steps) < 4 {
		t.Fatalf("expected user, orchestrator, capability and synthesis steps, got %d", len(steps))
	}
	if steps[0].Role != "user" {
		t.Errorf("first step role %q, want user", steps[0].Role)
	}
	if last := lastStep(steps); last.Role != "synthesis" || len(last.Content) == 0 {
		t.Errorf("expected a non-empty synthesis answer, got role %q", last.Role)
	}
	t.Logf("answer: %.300s", lastStep(steps).Content)
}

func TestPolicyQuestion(t *testing.T) {
	steps := ask(t, "What is our return policy?")
	for _, s := range steps {
		if s.Role == "query" {
			t.Errorf("policy question should not reach the query capability")
		}
	}
	if last := lastStep(steps); len(last.Content) <= 10 {
		t.Errorf("expected meaningful answer, got len=%d: %s", len(last.Content), last.Content)
	}
	t.Logf("answer: %.300s", lastStep(steps).Content)
}

func TestEveryStepIsStamped(t *testing.T) {
	steps := ask(t, "Explain our sales strategy")
	seen := map[string]bool{}
	for _, s := range steps {
		if s.ID == "" {
			t.Errorf("%s step has no ID", s.Role)
		}
		if seen[s.ID] {
			t.Errorf("duplicate step ID %s", s.ID)
		}
		seen[s.ID] = true
	}
}
