package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"

	"bentopro/internal/apierr"
)

// VertexImagen implements Generator via the Vertex AI Imagen predict API.
// It is the alternative backend for deployments without Generative Language
// API access.
type VertexImagen struct {
	projectID          string
	location           string
	model              string
	apiKey             string
	serviceAccount     string
	serviceAccountJSON string
}

// VertexImagenConfig describes how to connect to Imagen.
type VertexImagenConfig struct {
	ProjectID          string
	Location           string
	Model              string
	APIKey             string
	ServiceAccount     string
	ServiceAccountJSON string
}

// NewVertexImagen wires a VertexImagen client.
func NewVertexImagen(cfg VertexImagenConfig) *VertexImagen {
	return &VertexImagen{
		projectID:          strings.TrimSpace(cfg.ProjectID),
		location:           strings.TrimSpace(cfg.Location),
		model:              strings.TrimSpace(cfg.Model),
		apiKey:             strings.TrimSpace(cfg.APIKey),
		serviceAccount:     strings.TrimSpace(cfg.ServiceAccount),
		serviceAccountJSON: strings.TrimSpace(cfg.ServiceAccountJSON),
	}
}

// Generate runs an Imagen predict request and returns the rendered bytes.
func (v *VertexImagen) Generate(ctx context.Context, req Request) (Image, error) {
	if v == nil || v.projectID == "" || v.location == "" || v.model == "" {
		return Image{}, fmt.Errorf("render: imagen missing project/location/model: %w", apierr.ErrConfig)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Image{}, fmt.Errorf("render: empty prompt: %w", apierr.ErrInvalidPrompt)
	}

	instanceFields := map[string]any{
		"prompt": req.Prompt,
	}
	if len(req.Reference) > 0 {
		instanceFields["image"] = map[string]any{
			"bytesBase64Encoded": base64.StdEncoding.EncodeToString(req.Reference),
		}
	}
	instance, err := structpb.NewValue(instanceFields)
	if err != nil {
		return Image{}, err
	}

	paramFields := map[string]any{
		"sampleCount": 1,
	}
	if len(req.Reference) > 0 {
		paramFields["editMode"] = "inpainting-free-form"
	}
	if req.AspectRatio != "" {
		paramFields["aspectRatio"] = req.AspectRatio
	}
	params, err := structpb.NewValue(paramFields)
	if err != nil {
		return Image{}, err
	}

	endpoint := fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", v.projectID, v.location, v.model)
	options := []option.ClientOption{option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", v.location))}
	if v.serviceAccountJSON != "" {
		options = append(options, option.WithCredentialsJSON([]byte(v.serviceAccountJSON)))
	} else if v.serviceAccount != "" {
		options = append(options, option.WithCredentialsFile(v.serviceAccount))
	} else if v.apiKey != "" {
		options = append(options, option.WithAPIKey(v.apiKey))
	}

	client, err := aiplatform.NewPredictionClient(ctx, options...)
	if err != nil {
		return Image{}, fmt.Errorf("render: imagen prediction client: %v: %w", err, apierr.ErrUnavailable)
	}
	defer client.Close()

	resp, err := client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   endpoint,
		Instances:  []*structpb.Value{instance},
		Parameters: params,
	})
	if err != nil {
		return Image{}, fmt.Errorf("render: imagen predict: %w", apierr.Classify(err))
	}
	if len(resp.Predictions) == 0 {
		return Image{}, fmt.Errorf("render: empty prediction response: %w", apierr.ErrUnavailable)
	}

	field := resp.Predictions[0].GetStructValue().GetFields()["bytesBase64Encoded"]
	if field == nil {
		return Image{}, fmt.Errorf("render: prediction missing bytes: %w", apierr.ErrUnavailable)
	}
	data, err := base64.StdEncoding.DecodeString(field.GetStringValue())
	if err != nil {
		return Image{}, fmt.Errorf("render: decode result: %v: %w", err, apierr.ErrUnavailable)
	}
	if err := validatePayload(data); err != nil {
		return Image{}, err
	}
	return Image{Data: data, MIME: "image/png"}, nil
}
