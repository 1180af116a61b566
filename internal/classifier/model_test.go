package classifier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// testArtifact builds a one-tree forest that isolates any request
// containing special characters: the root splits on feature 2
// (special char count), the clean branch lands in a large leaf (long
// average path, low anomaly score) and the dirty branch in a
// singleton leaf (short path, high anomaly score).
func testArtifact() *Artifact {
	return &Artifact{
		Metadata: Metadata{
			Version:   "v1",
			Algorithm: "IsolationForest",
			TrainedAt: "2026-08-01T12:00:00Z",
			Author:    "ml-pipeline",
		},
		TransformVersion: TransformVersion,
		Forest: Forest{
			SampleSize: 256,
			Trees: []Tree{
				{Nodes: []Node{
					{Feature: 2, Threshold: 0.5, Left: 1, Right: 2},
					{Left: -1, Right: -1, Size: 256},
					{Left: -1, Right: -1, Size: 1},
				}},
			},
		},
	}
}

func writeArtifact(t *testing.T, a *Artifact) string {
	t.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadArtifact_PredictAndScore(t *testing.T) {
	model, err := LoadArtifact(writeArtifact(t, testArtifact()))
	if err != nil {
		t.Fatal(err)
	}

	clean := Features("GET", "/api/users", "")
	if got := model.Predict(clean); got != 1 {
		t.Errorf("clean request: expected label 1, got %d", got)
	}
	if score := model.Score(clean); score <= 0 {
		t.Errorf("clean request: expected positive decision score, got %f", score)
	}

	dirty := Features("GET", "/admin' OR 1=1", "")
	if got := model.Predict(dirty); got != -1 {
		t.Errorf("injection probe: expected label -1, got %d", got)
	}
	if score := model.Score(dirty); score >= 0 {
		t.Errorf("injection probe: expected negative decision score, got %f", score)
	}

	if meta := model.Metadata(); meta.Version != "v1" || meta.Algorithm != "IsolationForest" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

func TestLoadArtifact_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *Artifact)
	}{
		{"wrong transform version", func(a *Artifact) { a.TransformVersion = "v0" }},
		{"no trees", func(a *Artifact) { a.Forest.Trees = nil }},
		{"bad sample size", func(a *Artifact) { a.Forest.SampleSize = 1 }},
		{"empty tree", func(a *Artifact) { a.Forest.Trees[0].Nodes = nil }},
		{"child out of range", func(a *Artifact) { a.Forest.Trees[0].Nodes[0].Right = 99 }},
		{"feature out of range", func(a *Artifact) { a.Forest.Trees[0].Nodes[0].Feature = 7 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testArtifact()
			tt.mutate(a)
			if _, err := LoadArtifact(writeArtifact(t, a)); err == nil {
				t.Error("expected load error")
			}
		})
	}
}

func TestLoadArtifact_MissingOrCorruptFile(t *testing.T) {
	if _, err := LoadArtifact(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "garbage.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadArtifact(path); err == nil {
		t.Error("expected error for corrupt file")
	}
}

func TestAvgPathLength(t *testing.T) {
	if got := avgPathLength(0); got != 0 {
		t.Errorf("c(0) = %f, want 0", got)
	}
	if got := avgPathLength(1); got != 0 {
		t.Errorf("c(1) = %f, want 0", got)
	}
	if got := avgPathLength(2); got != 1 {
		t.Errorf("c(2) = %f, want 1", got)
	}
	if c16, c256 := avgPathLength(16), avgPathLength(256); c16 >= c256 {
		t.Errorf("c(n) must grow with n: c(16)=%f c(256)=%f", c16, c256)
	}
}
