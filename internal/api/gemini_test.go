package api

import (
	"context"
	"errors"
	"testing"

	"pet-arena/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func candidate(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}}}
}

func TestGenerateTextTrimsFirstPart(t *testing.T) {
	models := &fakeModels{resp: candidate(&genai.Part{Text: "  Bloop the fox  \n"}, &genai.Part{Text: "ignored"})}
	c := &GeminiClient{models: models}

	got, err := c.GenerateText(context.Background(), TextRequest{
		Model:       "gemini-2.0-flash",
		Turns:       []domain.Turn{{Role: domain.RoleUser, Parts: []domain.Part{{Text: "hi"}}}},
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bloop the fox", got)
	assert.Equal(t, "gemini-2.0-flash", models.model)
	require.NotNil(t, models.config.Temperature)
	assert.Equal(t, float32(0.7), *models.config.Temperature)
	assert.Empty(t, models.config.ResponseModalities)
}

func TestGenerateTextEmptyResponse(t *testing.T) {
	c := &GeminiClient{models: &fakeModels{resp: &genai.GenerateContentResponse{}}}
	got, err := c.GenerateText(context.Background(), TextRequest{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGenerateTextWrapsError(t *testing.T) {
	c := &GeminiClient{models: &fakeModels{err: errors.New("quota exceeded")}}
	_, err := c.GenerateText(context.Background(), TextRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGenerateImageReturnsFirstInlinePart(t *testing.T) {
	models := &fakeModels{resp: candidate(
		&genai.Part{Text: "here is your pet"},
		&genai.Part{InlineData: &genai.Blob{Data: []byte{1, 2, 3}}},
	)}
	c := &GeminiClient{models: models}

	blob, err := c.GenerateImage(context.Background(), ImageRequest{Model: "img", Temperature: 1, TopP: 0.95, TopK: 40})
	require.NoError(t, err)
	require.NotNil(t, blob)
	assert.Equal(t, "image/png", blob.MIMEType)
	assert.Equal(t, []byte{1, 2, 3}, blob.Data)
	assert.Equal(t, []string{"TEXT", "IMAGE"}, models.config.ResponseModalities)
	assert.Equal(t, float32(40), *models.config.TopK)
}

func TestGenerateImageWithoutImagePart(t *testing.T) {
	for name, resp := range map[string]*genai.GenerateContentResponse{
		"no candidates": {},
		"text only":     candidate(&genai.Part{Text: "sorry"}),
	} {
		t.Run(name, func(t *testing.T) {
			c := &GeminiClient{models: &fakeModels{resp: resp}}
			blob, err := c.GenerateImage(context.Background(), ImageRequest{})
			require.NoError(t, err)
			assert.Nil(t, blob)
		})
	}
}

func TestToContentsKeepsRolesAndInlineData(t *testing.T) {
	contents := toContents([]domain.Turn{
		{Role: domain.RoleUser, Parts: []domain.Part{{Text: "a fox"}, {InlineData: &domain.Blob{MIMEType: "image/jpeg", Data: []byte{9}}}}},
		{Role: domain.RoleModel, Parts: []domain.Part{{Text: "ok"}}},
	})
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[0].Parts, 2)
	assert.Equal(t, "a fox", contents[0].Parts[0].Text)
	assert.Equal(t, "image/jpeg", contents[0].Parts[1].InlineData.MIMEType)
}
