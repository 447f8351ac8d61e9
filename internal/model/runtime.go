package model

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	apperrors "github.com/Brownie44l1/damage-api/internal/errors"
)

// Runtime runs a loaded binary classifier. Score is synchronous and may
// serialize concurrent callers internally.
type Runtime interface {
	// InputShape is the per-image shape the model was declared with.
	InputShape() Shape
	// Score returns the probability of the positive class for t.
	Score(t Tensor) (float32, error)
	Close() error
}

// Options control how a model file is opened.
type Options struct {
	// LibraryPath locates the onnxruntime shared library. Empty uses the
	// library's platform default.
	LibraryPath string
	// Input fills dimensions the model leaves dynamic.
	Input Shape
}

// Open loads the model at path, choosing the backend by file extension.
func Open(path string, opts Options) (Runtime, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".onnx":
		return OpenOnnx(path, opts)
	case ".json":
		return OpenLogistic(path)
	default:
		return nil, fmt.Errorf("unsupported model format %q", ext)
	}
}

func checkTensor(t Tensor, want Shape) error {
	if t.Shape != want {
		return apperrors.NewInferenceError(
			fmt.Sprintf("tensor shape %s does not match model input %s", t.Shape, want), nil)
	}
	if len(t.Data) != want.Len() {
		return apperrors.NewInferenceError(
			fmt.Sprintf("tensor has %d values, expected %d", len(t.Data), want.Len()), nil)
	}
	return nil
}

// positiveScore reduces a model output to the probability of the positive
// class. A single value is a sigmoid output (or a logit when outside [0,1]);
// two values are a distribution over the classes (or logits).
func positiveScore(out []float32) (float32, error) {
	for _, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return 0, apperrors.NewInferenceError("model produced a non-finite output", nil)
		}
	}
	switch len(out) {
	case 1:
		if out[0] < 0 || out[0] > 1 {
			return sigmoid(float64(out[0])), nil
		}
		return out[0], nil
	case 2:
		sum := float64(out[0]) + float64(out[1])
		if out[0] >= 0 && out[1] >= 0 && math.Abs(sum-1) < 1e-3 {
			return out[1], nil
		}
		// softmax over two logits
		return sigmoid(float64(out[1]) - float64(out[0])), nil
	default:
		return 0, apperrors.NewInferenceError(
			fmt.Sprintf("model produced %d outputs, expected 1 or 2", len(out)), nil)
	}
}

func sigmoid(x float64) float32 {
	return float32(1 / (1 + math.Exp(-x)))
}
