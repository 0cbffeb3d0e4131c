package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// LoadFixture reads a fixture file relative to the test package directory.
func LoadFixture(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON unmarshals a JSON fixture into dest.
func LoadFixtureJSON(t *testing.T, path string, dest any) {
	t.Helper()

	if err := json.Unmarshal(LoadFixture(t, path), dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// FixturePath joins filename onto the package testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// Scenario ops.
const (
	OpWrite = "write"
	OpRead  = "read"
)

// ScenarioStep is one read or optimistic write against a scenario key. A
// write with WantCode set must fail with that error code.
type ScenarioStep struct {
	Op              string          `json:"op"`
	Payload         json.RawMessage `json:"payload"`
	ExpectedVersion int64           `json:"expectedVersion"`
	WantVersion     int64           `json:"wantVersion"`
	WantPayload     json.RawMessage `json:"wantPayload"`
	WantCode        string          `json:"wantCode"`
}

// Scenario is an ordered list of steps against a single key.
type Scenario struct {
	Key   string         `json:"key"`
	Steps []ScenarioStep `json:"steps"`
}

// LoadScenario loads testdata/<filename> and fails the test if the scenario
// has no key, no steps, or a step with an unknown op.
func LoadScenario(t *testing.T, filename string) Scenario {
	t.Helper()

	var sc Scenario
	LoadFixtureJSON(t, FixturePath(filename), &sc)
	if sc.Key == "" {
		t.Fatalf("scenario %s has no key", filename)
	}
	if len(sc.Steps) == 0 {
		t.Fatalf("scenario %s has no steps", filename)
	}
	for i, step := range sc.Steps {
		switch step.Op {
		case OpWrite, OpRead:
		default:
			t.Fatalf("scenario %s step %d: unknown op %q", filename, i, step.Op)
		}
	}
	return sc
}
