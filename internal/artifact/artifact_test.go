package artifact

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/Brownie44l1/damage-api/internal/errors"
	"github.com/Brownie44l1/damage-api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validModel = `{"format":"logistic","input_shape":[64,48,3],"channel_weights":[6,-6,0],"bias":0}`
	validPrep  = `{"resize":[64,48],"scale":0.00392156862745098}`
	validCard  = `{"model_name":"cnn_small","test_auc":0.973,"classes":["no_damage","damage"]}`
)

func writeBundle(t *testing.T, modelName, modelBody, prep, card string) Paths {
	t.Helper()
	dir := t.TempDir()
	paths := Paths{
		Model:         filepath.Join(dir, modelName),
		Preprocessing: filepath.Join(dir, "preprocessing.json"),
		ModelCard:     filepath.Join(dir, "model_card.json"),
	}
	write := func(path, body string) {
		if body == "" {
			return
		}
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	write(paths.Model, modelBody)
	write(paths.Preprocessing, prep)
	write(paths.ModelCard, card)
	return paths
}

func TestLoad(t *testing.T) {
	a, err := Load(writeBundle(t, "model.json", validModel, validPrep, validCard), model.Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "cnn_small", a.ModelName)
	require.NotNil(t, a.TestAUC)
	assert.InDelta(t, 0.973, *a.TestAUC, 1e-9)
	assert.Equal(t, model.Classes{"no_damage", "damage"}, a.Classes)
	assert.Equal(t, model.Shape{Width: 64, Height: 48, Channels: 3}, a.InputShape)
	assert.Equal(t, [2]int{64, 48}, a.Preprocessing.Resize)
	assert.InDelta(t, 1.0/255, a.Preprocessing.Scale, 1e-12)
	assert.Equal(t, a.InputShape, a.Model.InputShape())
}

func TestLoadAcceptsLegacyKeys(t *testing.T) {
	prep := `{"img_size":[64,48],"scale":0.00392157}`
	card := `{"best_model_name":"EfficientNetB0","classes":["damage","no_damage"]}`
	a, err := Load(writeBundle(t, "model.json", validModel, prep, card), model.Options{})
	require.NoError(t, err)

	assert.Equal(t, "EfficientNetB0", a.ModelName)
	assert.Nil(t, a.TestAUC)
	assert.Equal(t, [2]int{64, 48}, a.Preprocessing.Resize)
}

func TestLoadDefaultsModelName(t *testing.T) {
	a, err := Load(writeBundle(t, "model.json", validModel, validPrep, `{"classes":["a","b"]}`), model.Options{})
	require.NoError(t, err)
	assert.Equal(t, "Unknown", a.ModelName)
}

func TestLoadFailures(t *testing.T) {
	testCases := []struct {
		name      string
		modelName string
		model     string
		prep      string
		card      string
	}{
		{"missing model", "model.json", "", validPrep, validCard},
		{"corrupt model", "model.json", `{"format":`, validPrep, validCard},
		{"unsupported model", "model.h5", validModel, validPrep, validCard},
		{"missing preprocessing", "model.json", validModel, "", validCard},
		{"preprocessing not json", "model.json", validModel, `resize=64`, validCard},
		{"missing resize", "model.json", validModel, `{"scale":0.0039}`, validCard},
		{"missing scale", "model.json", validModel, `{"resize":[64,48]}`, validCard},
		{"resize arity", "model.json", validModel, `{"resize":[64],"scale":0.0039}`, validCard},
		{"zero resize", "model.json", validModel, `{"resize":[0,48],"scale":0.0039}`, validCard},
		{"negative scale", "model.json", validModel, `{"resize":[64,48],"scale":-1}`, validCard},
		{"unscaled", "model.json", validModel, `{"resize":[64,48],"scale":1}`, validCard},
		{"missing card", "model.json", validModel, validPrep, ""},
		{"missing classes", "model.json", validModel, validPrep, `{"model_name":"x"}`},
		{"three classes", "model.json", validModel, validPrep, `{"classes":["a","b","c"]}`},
		{"duplicate classes", "model.json", validModel, validPrep, `{"classes":["a","a"]}`},
		{"shape mismatch", "model.json", validModel, `{"resize":[224,224],"scale":0.0039}`, validCard},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeBundle(t, tc.modelName, tc.model, tc.prep, tc.card), model.Options{})
			var loadErr *apperrors.ArtifactLoadError
			require.ErrorAs(t, err, &loadErr)
		})
	}
}

func TestCloseNil(t *testing.T) {
	var a *Artifact
	assert.NoError(t, a.Close())
}
