package model

import "fmt"

// DecisionThreshold is the score at and above which the positive class is
// predicted.
const DecisionThreshold = 0.5

// Shape is the per-image input a model consumes, without the batch dimension.
type Shape struct {
	Width    int
	Height   int
	Channels int
}

// Len is the number of elements in a tensor of this shape.
func (s Shape) Len() int {
	return s.Width * s.Height * s.Channels
}

// Dims returns [width, height, channels].
func (s Shape) Dims() []int {
	return []int{s.Width, s.Height, s.Channels}
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Width, s.Height, s.Channels)
}

// Tensor is a single preprocessed image in height-width-channel order, the
// way numpy lays out an (H, W, C) array.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// At returns the value at row y, column x and channel c.
func (t Tensor) At(x, y, c int) float32 {
	return t.Data[(y*t.Shape.Width+x)*t.Shape.Channels+c]
}

// Classes is the ordered label pair from the model card. Index 0 is the
// negative class, index 1 the positive class.
type Classes [2]string

// Label applies the decision rule to a positive-class score.
func (c Classes) Label(score float32) string {
	if score >= DecisionThreshold {
		return c[1]
	}
	return c[0]
}

// Result is the outcome of classifying one image.
type Result struct {
	Score float32 `json:"score"`
	Label string  `json:"prediction"`
}
