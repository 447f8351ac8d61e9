package model

import (
	"fmt"
	"sync"

	apperrors "github.com/Brownie44l1/damage-api/internal/errors"
	ort "github.com/yalue/onnxruntime_go"
)

type layout int

const (
	layoutNHWC layout = iota
	layoutNCHW
)

// OnnxRuntime runs an ONNX model through onnxruntime. The session reuses
// pre-allocated input and output tensors, so Score holds a mutex for the
// duration of a forward pass.
type OnnxRuntime struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	shape        Shape
	layout       layout
}

// OpenOnnx initializes the onnxruntime environment if needed and creates a
// session for the model at path.
func OpenOnnx(path string, opts Options) (*OnnxRuntime, error) {
	if !ort.IsInitialized() {
		if opts.LibraryPath != "" {
			ort.SetSharedLibraryPath(opts.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs and outputs: %w", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("expected a single input and at least one output, got %d and %d", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("model input %q and output %q must be float32", in.Name, out.Name)
	}

	shape, lay, err := resolveInput(in.Dimensions, opts.Input)
	if err != nil {
		return nil, fmt.Errorf("model input %q: %w", in.Name, err)
	}
	outputShape := resolveOutput(out.Dimensions)
	if n := outputShape.FlattenedSize(); n != 1 && n != 2 {
		return nil, fmt.Errorf("model output %q has %d values, expected 1 or 2", out.Name, n)
	}

	inputShape := ort.NewShape(1, int64(shape.Height), int64(shape.Width), int64(shape.Channels))
	if lay == layoutNCHW {
		inputShape = ort.NewShape(1, int64(shape.Channels), int64(shape.Height), int64(shape.Width))
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{in.Name}, []string{out.Name},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &OnnxRuntime{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		shape:        shape,
		layout:       lay,
	}, nil
}

func (o *OnnxRuntime) InputShape() Shape {
	return o.shape
}

func (o *OnnxRuntime) Score(t Tensor) (float32, error) {
	if err := checkTensor(t, o.shape); err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	dst := o.inputTensor.GetData()
	if o.layout == layoutNCHW {
		toCHW(dst, t)
	} else {
		copy(dst, t.Data)
	}

	if err := o.session.Run(); err != nil {
		return 0, apperrors.NewInferenceError("inference failed", err)
	}
	return positiveScore(o.outputTensor.GetData())
}

func (o *OnnxRuntime) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inputTensor != nil {
		o.inputTensor.Destroy()
	}
	if o.outputTensor != nil {
		o.outputTensor.Destroy()
	}
	if o.session != nil {
		o.session.Destroy()
	}
	return ort.DestroyEnvironment()
}

// resolveInput reads the per-image shape and layout from the declared model
// input. Dynamic dimensions (-1) are taken from fallback.
func resolveInput(dims ort.Shape, fallback Shape) (Shape, layout, error) {
	if len(dims) != 4 {
		return Shape{}, 0, fmt.Errorf("expected a 4-dimensional input, got %v", dims)
	}
	dim := func(v int64, def int) int {
		if v <= 0 {
			return def
		}
		return int(v)
	}
	var (
		s   Shape
		lay layout
	)
	switch {
	case dims[3] == 3 || (dims[3] <= 0 && dims[1] != 3):
		lay = layoutNHWC
		s = Shape{Height: dim(dims[1], fallback.Height), Width: dim(dims[2], fallback.Width), Channels: dim(dims[3], 3)}
	case dims[1] == 3:
		lay = layoutNCHW
		s = Shape{Channels: 3, Height: dim(dims[2], fallback.Height), Width: dim(dims[3], fallback.Width)}
	default:
		return Shape{}, 0, fmt.Errorf("cannot find a 3-channel axis in %v", dims)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return Shape{}, 0, fmt.Errorf("dynamic spatial dimensions in %v and no fallback size", dims)
	}
	return s, lay, nil
}

func resolveOutput(dims ort.Shape) ort.Shape {
	out := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

// toCHW transposes an HWC tensor into dst in channel-major order.
func toCHW(dst []float32, t Tensor) {
	w, h, c := t.Shape.Width, t.Shape.Height, t.Shape.Channels
	plane := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pixel := y*w + x
			for ch := 0; ch < c; ch++ {
				dst[ch*plane+pixel] = t.Data[pixel*c+ch]
			}
		}
	}
}
