// Package artifact loads the immutable model bundle: the model itself, its
// preprocessing descriptor and its model card.
package artifact

import (
	"fmt"
	"os"

	apperrors "github.com/Brownie44l1/damage-api/internal/errors"
	"github.com/Brownie44l1/damage-api/internal/model"
	"github.com/rs/zerolog/log"
)

// Paths locates the three files of a bundle.
type Paths struct {
	Model         string
	Preprocessing string
	ModelCard     string
}

// Artifact is built once at startup and only read afterwards, so it can be
// shared across requests without locking.
type Artifact struct {
	Model         model.Runtime
	InputShape    model.Shape
	Classes       model.Classes
	Preprocessing Preprocessing
	ModelName     string
	TestAUC       *float64
}

// Load reads and cross-checks the bundle. Every failure is an
// ArtifactLoadError; the process must not serve traffic without an artifact.
func Load(paths Paths, opts model.Options) (*Artifact, error) {
	log.Info().
		Str("model", paths.Model).Bool("model_present", exists(paths.Model)).
		Str("preprocessing", paths.Preprocessing).Bool("preprocessing_present", exists(paths.Preprocessing)).
		Str("model_card", paths.ModelCard).Bool("model_card_present", exists(paths.ModelCard)).
		Msg("loading artifact")

	prep, err := ReadPreprocessing(paths.Preprocessing)
	if err != nil {
		return nil, apperrors.NewArtifactLoadError(paths.Preprocessing, err)
	}
	card, err := ReadModelCard(paths.ModelCard)
	if err != nil {
		return nil, apperrors.NewArtifactLoadError(paths.ModelCard, err)
	}

	want := model.Shape{Width: prep.Resize[0], Height: prep.Resize[1], Channels: 3}
	if !exists(paths.Model) {
		return nil, apperrors.NewArtifactLoadError(paths.Model, fmt.Errorf("model file not found"))
	}
	opts.Input = want
	rt, err := model.Open(paths.Model, opts)
	if err != nil {
		return nil, apperrors.NewArtifactLoadError(paths.Model, err)
	}
	if got := rt.InputShape(); got != want {
		rt.Close()
		return nil, apperrors.NewArtifactLoadError(paths.Model,
			fmt.Errorf("model input shape %s does not match preprocessing resize %s", got, want))
	}

	return &Artifact{
		Model:         rt,
		InputShape:    want,
		Classes:       model.Classes(card.Classes),
		Preprocessing: prep,
		ModelName:     card.ModelName,
		TestAUC:       card.TestAUC,
	}, nil
}

// Close releases the model runtime. It is called once at shutdown.
func (a *Artifact) Close() error {
	if a == nil || a.Model == nil {
		return nil
	}
	return a.Model.Close()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
