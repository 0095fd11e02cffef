package classifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(f.responses) == 0 {
		return "", errors.New("no response scripted")
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeLLM) ModelName() string { return "fake-model" }

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

var never = DetectorFunc(func(*core.RawMessage) bool { return false })
var always = DetectorFunc(func(*core.RawMessage) bool { return true })

func newService(llm core.LLMClient, detector BroadcastDetector) *Service {
	s := NewService(llm, detector, utils.NewTextProcessor(zap.NewNop()), config.ClassifierConfig{
		MaxPromptBody:   4096,
		MaxAttempts:     3,
		SummaryMaxChars: 500,
	}, zap.NewNop())
	s.retryWait = time.Millisecond
	return s
}

var (
	profile = &core.UserProfile{
		ID:       "u1",
		Email:    "vc@fund.example",
		Role:     core.RoleInvestor,
		Keywords: []string{"fintech", "seed"},
		Context:  "Seed fund in Lisbon",
	}
	pitch = &core.RawMessage{
		ProviderID: "m1",
		From:       "Ana <ana@startup.example>",
		Subject:    "Seed round for our payments API",
		Body:       "Hi, we are raising a seed round for a fintech API.",
	}
)

func TestClassifyOpportunity(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"lane":"opportunity","thesis_match_score":85,"priority":"important","category":"","summary":"Seed fintech pitch"}`}}

	c, err := newService(llm, never).Classify(context.Background(), pitch, profile)
	require.NoError(t, err)

	assert.Equal(t, core.LaneOpportunity, c.Lane)
	require.NotNil(t, c.ThesisMatchScore)
	assert.Equal(t, 85, *c.ThesisMatchScore)
	assert.Equal(t, 85, c.ImportanceScore)
	assert.Equal(t, core.PriorityImportant, c.Priority)
	assert.Equal(t, "OPPORTUNITY", c.Category)
	assert.Equal(t, "Seed fintech pitch", c.Summary)
	assert.Equal(t, "fake-model", c.Model)
	assert.Equal(t, 1, llm.calls())

	prompt := llm.prompts[0]
	assert.Contains(t, prompt, "fintech, seed")
	assert.Contains(t, prompt, "Seed fund in Lisbon")
	assert.Contains(t, prompt, pitch.Subject)
	assert.NotContains(t, prompt, "mass audience")
}

func TestClassifyZeroThesisScoreIsValid(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"lane":"opportunity","thesis_match_score":0,"priority":"low","summary":"x"}`}}

	c, err := newService(llm, never).Classify(context.Background(), pitch, profile)
	require.NoError(t, err)
	require.NotNil(t, c.ThesisMatchScore)
	assert.Zero(t, *c.ThesisMatchScore)
	assert.Zero(t, c.ImportanceScore)
}

func TestClassifyOperationImportance(t *testing.T) {
	cases := []struct {
		priority   string
		importance int
		category   string
	}{
		{"critical", 90, "CRITICAL"},
		{"important", 70, "HIGH"},
		{"useful", 50, "STANDARD"},
		{"low", 20, "LOW"},
	}
	for _, tc := range cases {
		t.Run(tc.priority, func(t *testing.T) {
			llm := &fakeLLM{responses: []string{`{"lane":"operation","priority":"` + tc.priority + `","summary":"invoice"}`}}

			c, err := newService(llm, never).Classify(context.Background(), pitch, profile)
			require.NoError(t, err)
			assert.Equal(t, core.LaneOperation, c.Lane)
			assert.Nil(t, c.ThesisMatchScore)
			assert.Equal(t, tc.importance, c.ImportanceScore)
			assert.Equal(t, tc.category, c.Category)
		})
	}
}

func TestClassifyBroadcastForcesOperation(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"lane":"opportunity","thesis_match_score":95,"priority":"useful","summary":"Fintech weekly"}`}}

	c, err := newService(llm, always).Classify(context.Background(), pitch, profile)
	require.NoError(t, err)

	assert.Equal(t, core.LaneOperation, c.Lane)
	assert.Nil(t, c.ThesisMatchScore)
	assert.Equal(t, 50, c.ImportanceScore)
	assert.Equal(t, "STANDARD", c.Category)
	assert.True(t, c.Broadcast)
	assert.Contains(t, llm.prompts[0], "mass audience")
}

func TestClassifySummaryFallsBackToBody(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"lane":"operation","priority":"low","summary":""}`}}

	c, err := newService(llm, never).Classify(context.Background(), pitch, profile)
	require.NoError(t, err)
	assert.Equal(t, pitch.Body, c.Summary)
}

func TestClassifyRetriesTransportFailures(t *testing.T) {
	llm := &fakeLLM{
		errs:      []error{errors.New("connection reset"), errors.New("503")},
		responses: []string{`{"lane":"operation","priority":"critical","summary":"x"}`},
	}

	c, err := newService(llm, never).Classify(context.Background(), pitch, profile)
	require.NoError(t, err)
	assert.Equal(t, core.PriorityCritical, c.Priority)
	assert.Equal(t, 3, llm.calls())
}

func TestClassifyFailsWhenModelUnreachable(t *testing.T) {
	down := errors.New("connection refused")
	llm := &fakeLLM{errs: []error{down, down, down, down}}

	_, err := newService(llm, never).Classify(context.Background(), pitch, profile)
	assert.ErrorIs(t, err, core.ErrClassificationFailed)
	// bounded by MaxAttempts
	assert.Equal(t, 3, llm.calls())
}

func TestClassifyDoesNotRetryMalformedVerdict(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"lane":"opportunity","priority":"useful"}`}}

	_, err := newService(llm, never).Classify(context.Background(), pitch, profile)
	assert.ErrorIs(t, err, core.ErrClassificationFailed)
	assert.Equal(t, 1, llm.calls())
}

func TestClassifyHonoursCancellation(t *testing.T) {
	llm := &fakeLLM{responses: []string{`{"lane":"operation","priority":"low"}`}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newService(llm, never).Classify(ctx, pitch, profile)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrClassificationFailed)
	assert.Zero(t, llm.calls())
}
