package testutil

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
)

func TestFixturesAreJSON(t *testing.T) {
	t.Parallel()

	for name, doc := range map[string]string{
		"scenario": ScenarioGraph,
		"division": DivisionGraph,
		"truth":    DivisionTruth,
	} {
		if !json.Valid([]byte(doc)) {
			t.Errorf("%s fixture is not valid JSON", name)
		}
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := WriteFile(t, "graph.json", ScenarioGraph)
	got, err := os.ReadFile(path)
	AssertNoError(t, err)
	if string(got) != ScenarioGraph {
		t.Errorf("file content = %q, want fixture", got)
	}
}

func TestAssertError(t *testing.T) {
	t.Parallel()

	AssertError(t, errors.New("test error"))
	AssertNoError(t, nil)
}
