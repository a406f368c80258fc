package analysis

import (
	types "FormCoach/pkg"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// Client is the vendor surface the pipeline depends on.
type Client interface {
	FileGetter
	Upload(ctx context.Context, path string) (*File, error)
	Delete(ctx context.Context, name string) error
	Classify(ctx context.Context, file *File) (Exercise, error)
	Analyze(ctx context.Context, file *File, criteria string) ([]Moment, error)
}

var ErrMissingAPIKey = errors.New("gemini api key missing")

// Gemini talks to the Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGemini(ctx context.Context, cfg types.AnalysisConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{client: client, model: model, logger: logger}, nil
}

func (g *Gemini) Upload(ctx context.Context, path string) (*File, error) {
	f, err := g.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{MIMEType: "video/mp4"})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", path, err)
	}
	g.logger.Info("Uploaded video", zap.String("path", path), zap.String("file", f.Name))
	return fromGenai(f), nil
}

func (g *Gemini) Get(ctx context.Context, name string) (*File, error) {
	f, err := g.client.Files.Get(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	return fromGenai(f), nil
}

func (g *Gemini) Delete(ctx context.Context, name string) error {
	if _, err := g.client.Files.Delete(ctx, name, nil); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", name, err)
	}
	return nil
}

func (g *Gemini) Classify(ctx context.Context, file *File) (Exercise, error) {
	text, err := g.generate(ctx, file, ClassifyPrompt(), exerciseSchema())
	if err != nil {
		return ExerciseUnknown, err
	}
	exercise, err := DecodeExercise(text)
	if err != nil {
		return ExerciseUnknown, err
	}
	g.logger.Info("Classified exercise", zap.String("file", file.Name), zap.String("exercise", string(exercise)))
	return exercise, nil
}

func (g *Gemini) Analyze(ctx context.Context, file *File, criteria string) ([]Moment, error) {
	text, err := g.generate(ctx, file, AnalyzePrompt(criteria), analysisSchema())
	if err != nil {
		return nil, err
	}
	return DecodeMoments(text)
}

func (g *Gemini) generate(ctx context.Context, file *File, prompt string, schema *genai.Schema) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromURI(file.URI, file.MIMEType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate content with %s: %w", g.model, err)
	}
	return resp.Text(), nil
}

func fromGenai(f *genai.File) *File {
	mime := f.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}
	return &File{
		Name:     f.Name,
		URI:      f.URI,
		MIMEType: mime,
		State:    FileState(f.State),
	}
}

func exerciseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"label": {
				Type: genai.TypeString,
				Enum: []string{string(ExerciseSquat), string(ExercisePushUp), string(ExerciseUnknown)},
			},
		},
		Required: []string{"label"},
	}
}

func analysisSchema() *genai.Schema {
	list := &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"analysis": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"timestamp": {Type: genai.TypeString},
						"image_url": {Type: genai.TypeString},
						"posture": {
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"errors":      list,
								"suggestions": list,
							},
							Required: []string{"errors", "suggestions"},
						},
					},
					Required: []string{"timestamp", "posture"},
				},
			},
		},
		Required: []string{"analysis"},
	}
}
