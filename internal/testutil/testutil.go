// Package testutil provides shared test helpers and hypothesis graph
// fixtures in their on-disk JSON form.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// ScenarioGraph has detection 1 in frame 0, detections 2 and 3 in frame 1,
// a link 1 -> 2 and an exclusion between 2 and 3.
const ScenarioGraph = `{
  "segmentationHypotheses": [
    {"id": 1, "timestep": 0, "features": [0.5]},
    {"id": 2, "timestep": 1, "features": [0.5]},
    {"id": 3, "timestep": 1, "features": [0.5]}
  ],
  "linkingHypotheses": [
    {"src": 1, "dest": 2, "features": [0.2, 0.7]}
  ],
  "exclusions": [[2, 3]]
}`

// DivisionGraph has parent 1 in frame 0 with children 2 and 3 in frame 1,
// links 1 -> 2 and 1 -> 3, and a division of 1 into 2 and 3. Every
// hypothesis has the single feature 1 when active and 0 otherwise.
const DivisionGraph = `{
  "settings": {"states_share_weights": true},
  "segmentationHypotheses": [
    {"id": 1, "timestep": 0, "features": [[0], [1]], "appearanceFeatures": [[0], [1]], "disappearanceFeatures": [[0], [1]]},
    {"id": 2, "timestep": 1, "features": [[0], [1]], "appearanceFeatures": [[0], [1]], "disappearanceFeatures": [[0], [1]]},
    {"id": 3, "timestep": 1, "features": [[0], [1]], "appearanceFeatures": [[0], [1]], "disappearanceFeatures": [[0], [1]]}
  ],
  "linkingHypotheses": [
    {"src": 1, "dest": 2, "features": [[0], [1]]},
    {"src": 1, "dest": 3, "features": [[0], [1]]}
  ],
  "divisionHypotheses": [
    {"parent": 1, "children": [2, 3], "features": [[0], [1]]}
  ]
}`

// DivisionTruth labels the division of DivisionGraph as used.
const DivisionTruth = `{
  "detectionResults": [{"id": 1, "value": true}, {"id": 2, "value": true}, {"id": 3, "value": true}],
  "linkingResults": [{"src": 1, "dest": 2, "value": false}, {"src": 1, "dest": 3, "value": false}],
  "divisionResults": [{"parent": 1, "children": [2, 3], "value": true}]
}`

// WriteFile writes content to name inside a fresh temporary directory and
// returns the full path.
func WriteFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
