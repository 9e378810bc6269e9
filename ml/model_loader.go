package ml

import (
	"fmt"
)

func LoadModel(modelType, path string) (*Pipeline, error) {
	if path == "" {
		return nil, errEmptyPath
	}
	switch modelType {
	case ModelTypePCALogistic, "":
		model := &Pipeline{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

// LoadModelBytes is LoadModel for artifacts that were fetched remotely.
func LoadModelBytes(modelType string, payload []byte) (*Pipeline, error) {
	switch modelType {
	case ModelTypePCALogistic, "":
		return UnmarshalPipeline(payload)
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

func SupportedModelType(modelType string) bool {
	return modelType == ModelTypePCALogistic
}
