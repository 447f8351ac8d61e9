package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

const logisticFormat = "logistic"

// LogisticParams is the on-disk form of a logistic model.
type LogisticParams struct {
	Format         string    `json:"format"`
	InputShape     []int     `json:"input_shape"`
	ChannelWeights []float64 `json:"channel_weights"`
	Bias           float64   `json:"bias"`
}

// LogisticRuntime is a pure-Go baseline classifier over per-channel means:
//
//	score = sigmoid(bias + Σ_c weight_c · mean_c(tensor))
//
// It needs no native library and is safe for concurrent use.
type LogisticRuntime struct {
	shape   Shape
	weights []float64
	bias    float64
}

// OpenLogistic reads a JSON model of the form
// {"format":"logistic","input_shape":[w,h,3],"channel_weights":[r,g,b],"bias":b}.
func OpenLogistic(path string) (*LogisticRuntime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var f LogisticParams
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return NewLogistic(f)
}

// NewLogistic validates f and builds the runtime.
func NewLogistic(f LogisticParams) (*LogisticRuntime, error) {
	if f.Format != logisticFormat {
		return nil, fmt.Errorf("unsupported model format %q, expected %q", f.Format, logisticFormat)
	}
	if len(f.InputShape) != 3 || f.InputShape[0] <= 0 || f.InputShape[1] <= 0 || f.InputShape[2] <= 0 {
		return nil, fmt.Errorf("input_shape must be three positive ints [w,h,c], got %v", f.InputShape)
	}
	if len(f.ChannelWeights) != f.InputShape[2] {
		return nil, fmt.Errorf("expected %d channel weights, got %d", f.InputShape[2], len(f.ChannelWeights))
	}
	if !finite(f.Bias) {
		return nil, fmt.Errorf("model bias must be finite")
	}
	for _, w := range f.ChannelWeights {
		if !finite(w) {
			return nil, fmt.Errorf("model weights must be finite")
		}
	}
	return &LogisticRuntime{
		shape:   Shape{Width: f.InputShape[0], Height: f.InputShape[1], Channels: f.InputShape[2]},
		weights: f.ChannelWeights,
		bias:    f.Bias,
	}, nil
}

func (l *LogisticRuntime) InputShape() Shape {
	return l.shape
}

func (l *LogisticRuntime) Score(t Tensor) (float32, error) {
	if err := checkTensor(t, l.shape); err != nil {
		return 0, err
	}
	c := l.shape.Channels
	sums := make([]float64, c)
	for i, v := range t.Data {
		sums[i%c] += float64(v)
	}
	pixels := float64(l.shape.Width * l.shape.Height)
	z := l.bias
	for ch, w := range l.weights {
		z += w * sums[ch] / pixels
	}
	return positiveScore([]float32{sigmoid(z)})
}

func (l *LogisticRuntime) Close() error {
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
