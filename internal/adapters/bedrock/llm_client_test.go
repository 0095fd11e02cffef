package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestGenerateClaude(t *testing.T) {
	inv := &fakeInvoker{body: `{"content":[{"type":"text","text":"{\"lane\":\"operation\"}"}]}`}
	c := NewBedrockClient(inv, "anthropic.claude-3-haiku-20240307-v1:0", 256, 0.1, 0.9, zap.NewNop())

	out, err := c.Generate(context.Background(), "classify")
	require.NoError(t, err)
	assert.Equal(t, `{"lane":"operation"}`, out)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", c.ModelName())

	var req map[string]interface{}
	require.NoError(t, json.Unmarshal(inv.input.Body, &req))
	assert.Equal(t, "bedrock-2023-05-31", req["anthropic_version"])
	assert.EqualValues(t, 256, req["max_tokens"])
}

func TestGenerateTitan(t *testing.T) {
	inv := &fakeInvoker{body: `{"results":[{"outputText":"answer"}]}`}
	c := NewBedrockClient(inv, "amazon.titan-text-express-v1", 256, 0.1, 0.9, zap.NewNop())

	out, err := c.Generate(context.Background(), "classify")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)

	var req map[string]interface{}
	require.NoError(t, json.Unmarshal(inv.input.Body, &req))
	assert.Equal(t, "classify", req["inputText"])
}

func TestGenerateGenericFallsBackToRawBody(t *testing.T) {
	inv := &fakeInvoker{body: `{"unexpected":true}`}
	c := NewBedrockClient(inv, "meta.llama3", 64, 0, 1, zap.NewNop())

	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, `{"unexpected":true}`, out)
}

func TestGenerateErrors(t *testing.T) {
	c := NewBedrockClient(&fakeInvoker{err: errors.New("throttled")}, "amazon.titan-text-express-v1", 64, 0, 1, zap.NewNop())
	_, err := c.Generate(context.Background(), "p")
	assert.ErrorContains(t, err, "throttled")

	c = NewBedrockClient(&fakeInvoker{body: `{"results":[]}`}, "amazon.titan-text-express-v1", 64, 0, 1, zap.NewNop())
	_, err = c.Generate(context.Background(), "p")
	assert.Error(t, err)
}
