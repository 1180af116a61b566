package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Metadata identifies a trained model artifact.
type Metadata struct {
	Version     string `json:"version"`
	Algorithm   string `json:"algorithm"`
	TrainedAt   string `json:"trained_at"`
	Author      string `json:"author"`
	Description string `json:"description,omitempty"`
}

// Artifact is the JSON model file produced by the training pipeline.
type Artifact struct {
	Metadata         Metadata `json:"metadata"`
	TransformVersion string   `json:"transform_version"`
	Forest           Forest   `json:"forest"`
}

// Forest is an isolation-forest ensemble.
type Forest struct {
	Trees []Tree `json:"trees"`
	// SampleSize is the subsample size used at fit time; it
	// normalizes path lengths into the [0,1] anomaly score.
	SampleSize int `json:"sample_size"`
}

// Tree is a flattened isolation tree. Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is a single split or leaf. Left/Right hold child indexes into
// the tree's node slice; -1 marks a leaf. Size is the number of
// training samples that reached the node.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size"`
}

// Model is the narrow decision contract a loaded artifact satisfies.
// Predict returns the model's raw label space: 1 safe, -1 anomalous.
// Score returns the raw decision score where negative means anomalous,
// matching the training collaborator's convention. Callers outside
// this package should use Gate, which translates both onto the
// canonical risk scale.
type Model interface {
	Predict(fv FeatureVector) int
	Score(fv FeatureVector) float64
	Metadata() Metadata
}

// LoadArtifact reads and validates a model artifact from disk.
func LoadArtifact(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing model artifact: %w", err)
	}
	if a.TransformVersion != TransformVersion {
		return nil, fmt.Errorf("model artifact transform %q does not match runtime transform %q",
			a.TransformVersion, TransformVersion)
	}
	if len(a.Forest.Trees) == 0 {
		return nil, fmt.Errorf("model artifact %q contains no trees", path)
	}
	if a.Forest.SampleSize < 2 {
		return nil, fmt.Errorf("model artifact %q has invalid sample size %d", path, a.Forest.SampleSize)
	}
	for ti, tree := range a.Forest.Trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("model artifact %q: tree %d is empty", path, ti)
		}
		for ni, n := range tree.Nodes {
			if n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
				return nil, fmt.Errorf("model artifact %q: tree %d node %d has out-of-range child", path, ti, ni)
			}
			if n.Feature < 0 || n.Feature >= len(FeatureVector{}) {
				return nil, fmt.Errorf("model artifact %q: tree %d node %d references feature %d", path, ti, ni, n.Feature)
			}
		}
	}

	return &forestModel{artifact: &a}, nil
}

type forestModel struct {
	artifact *Artifact
}

func (m *forestModel) Metadata() Metadata { return m.artifact.Metadata }

// Score computes the isolation-forest decision score: 0.5 minus the
// anomaly score s(x) = 2^(-E[h(x)]/c(n)). Negative values mean the
// sample isolates quickly and is anomalous.
func (m *forestModel) Score(fv FeatureVector) float64 {
	f := m.artifact.Forest

	var total float64
	for _, tree := range f.Trees {
		total += pathLength(tree, fv)
	}
	mean := total / float64(len(f.Trees))

	anomaly := math.Pow(2, -mean/avgPathLength(f.SampleSize))
	return 0.5 - anomaly
}

func (m *forestModel) Predict(fv FeatureVector) int {
	if m.Score(fv) < 0 {
		return -1
	}
	return 1
}

// pathLength walks one isolation tree and returns the depth at which
// fv lands, plus the average-path correction for the leaf's size.
func pathLength(tree Tree, fv FeatureVector) float64 {
	depth := 0.0
	idx := 0
	for {
		n := tree.Nodes[idx]
		if n.Left < 0 || n.Right < 0 {
			return depth + avgPathLength(n.Size)
		}
		if fv[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
		depth++
	}
}

const eulerMascheroni = 0.5772156649

// avgPathLength is c(n), the average path length of an unsuccessful
// search in a binary search tree over n samples.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerMascheroni) - 2*(fn-1)/fn
	}
}
