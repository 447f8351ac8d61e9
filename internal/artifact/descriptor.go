package artifact

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// scaleTolerance allows 1/255 written with limited precision.
const scaleTolerance = 1e-6

// Preprocessing is the resize and normalization descriptor the model was
// trained with.
type Preprocessing struct {
	Resize [2]int  `json:"resize"` // width, height
	Scale  float64 `json:"scale"`
}

// ModelCard is the model's descriptive metadata.
type ModelCard struct {
	ModelName string    `json:"model_name"`
	TestAUC   *float64  `json:"test_auc"`
	Classes   [2]string `json:"classes"`
}

type rawPreprocessing struct {
	Resize  []int    `json:"resize"`
	ImgSize []int    `json:"img_size"`
	Scale   *float64 `json:"scale"`
}

type rawModelCard struct {
	ModelName     string   `json:"model_name"`
	BestModelName string   `json:"best_model_name"`
	TestAUC       *float64 `json:"test_auc"`
	Classes       []string `json:"classes"`
}

// ReadPreprocessing parses the descriptor at path. "img_size" is accepted in
// place of "resize".
func ReadPreprocessing(path string) (Preprocessing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Preprocessing{}, fmt.Errorf("failed to read preprocessing descriptor: %w", err)
	}
	var raw rawPreprocessing
	if err := json.Unmarshal(data, &raw); err != nil {
		return Preprocessing{}, fmt.Errorf("failed to parse preprocessing descriptor: %w", err)
	}

	size := raw.Resize
	if size == nil {
		size = raw.ImgSize
	}
	if size == nil {
		return Preprocessing{}, fmt.Errorf("preprocessing descriptor is missing %q", "resize")
	}
	if len(size) != 2 || size[0] <= 0 || size[1] <= 0 {
		return Preprocessing{}, fmt.Errorf("resize must be two positive ints [w,h], got %v", size)
	}
	if raw.Scale == nil {
		return Preprocessing{}, fmt.Errorf("preprocessing descriptor is missing %q", "scale")
	}
	scale := *raw.Scale
	if math.IsNaN(scale) || scale <= 0 || scale*255 > 1+scaleTolerance {
		return Preprocessing{}, fmt.Errorf("scale must be in (0, 1/255], got %v", scale)
	}
	return Preprocessing{Resize: [2]int{size[0], size[1]}, Scale: scale}, nil
}

// ReadModelCard parses the model card at path. "best_model_name" is accepted
// in place of "model_name"; a card without a name reports "Unknown".
func ReadModelCard(path string) (ModelCard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ModelCard{}, fmt.Errorf("failed to read model card: %w", err)
	}
	var raw rawModelCard
	if err := json.Unmarshal(data, &raw); err != nil {
		return ModelCard{}, fmt.Errorf("failed to parse model card: %w", err)
	}

	if raw.Classes == nil {
		return ModelCard{}, fmt.Errorf("model card is missing %q", "classes")
	}
	if len(raw.Classes) != 2 {
		return ModelCard{}, fmt.Errorf("model card must list exactly 2 classes, got %d", len(raw.Classes))
	}
	if raw.Classes[0] == "" || raw.Classes[1] == "" || raw.Classes[0] == raw.Classes[1] {
		return ModelCard{}, fmt.Errorf("model card classes must be two distinct non-empty labels, got %q", raw.Classes)
	}

	name := raw.ModelName
	if name == "" {
		name = raw.BestModelName
	}
	if name == "" {
		name = "Unknown"
	}
	return ModelCard{
		ModelName: name,
		TestAUC:   raw.TestAUC,
		Classes:   [2]string{raw.Classes[0], raw.Classes[1]},
	}, nil
}
