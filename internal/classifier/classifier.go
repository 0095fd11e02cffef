// Package classifier assigns each message a lane and a score with a single
// model call per message.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mikey/inbox-triage/internal/config"
	"github.com/mikey/inbox-triage/internal/core"
	"github.com/mikey/inbox-triage/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Operation lane importance per priority
var priorityImportance = map[core.Priority]int{
	core.PriorityCritical:  90,
	core.PriorityImportant: 70,
	core.PriorityUseful:    50,
	core.PriorityLow:       20,
}

var priorityCategory = map[core.Priority]string{
	core.PriorityCritical:  "CRITICAL",
	core.PriorityImportant: "HIGH",
	core.PriorityUseful:    "STANDARD",
	core.PriorityLow:       "LOW",
}

const opportunityCategory = "OPPORTUNITY"

// Service classifies messages for a user profile
type Service struct {
	llm           core.LLMClient
	detector      BroadcastDetector
	textProcessor *utils.TextProcessor
	limiter       *rate.Limiter
	cfg           config.ClassifierConfig
	retryWait     time.Duration
	logger        *zap.Logger
}

// NewService creates a new classification service
func NewService(
	llm core.LLMClient,
	detector BroadcastDetector,
	textProcessor *utils.TextProcessor,
	cfg config.ClassifierConfig,
	logger *zap.Logger,
) *Service {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if detector == nil {
		detector = NewHeuristicDetector(nil)
	}
	return &Service{
		llm:           llm,
		detector:      detector,
		textProcessor: textProcessor,
		limiter:       rate.NewLimiter(limit, burst),
		cfg:           cfg,
		retryWait:     time.Second,
		logger:        logger,
	}
}

// Classify runs the sorter and scorer for one message.
// It returns an error wrapping core.ErrClassificationFailed when the model is
// unreachable or answers with an unusable verdict.
func (s *Service) Classify(ctx context.Context, msg *core.RawMessage, profile *core.UserProfile) (*core.Classification, error) {
	broadcast := s.detector.IsBroadcast(msg)
	body := s.textProcessor.ForPrompt(msg.Body, s.cfg.MaxPromptBody)
	prompt := BuildPrompt(msg, profile, body, broadcast)

	response, err := s.generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", core.ErrClassificationFailed, err)
	}

	verdict, err := ParseVerdict(response)
	if err != nil {
		s.logger.Warn("Unusable classification verdict",
			zap.String("message_id", msg.ProviderID),
			zap.Error(err))
		return nil, err
	}

	result := s.score(verdict, broadcast)
	if result.Summary == "" {
		result.Summary = s.textProcessor.Preview(msg.Body, s.cfg.SummaryMaxChars)
	} else {
		result.Summary = s.textProcessor.Preview(result.Summary, s.cfg.SummaryMaxChars)
	}

	s.logger.Debug("Message classified",
		zap.String("message_id", msg.ProviderID),
		zap.String("lane", string(result.Lane)),
		zap.String("priority", string(result.Priority)),
		zap.Int("importance", result.ImportanceScore),
		zap.Bool("broadcast", broadcast))
	return result, nil
}

// score applies the broadcast override and derives importance and category
func (s *Service) score(v *Verdict, broadcast bool) *core.Classification {
	c := &core.Classification{
		Lane:             v.Lane,
		Priority:         v.Priority,
		ThesisMatchScore: v.ThesisMatchScore,
		Category:         v.Category,
		Summary:          v.Summary,
		Broadcast:        broadcast,
		Model:            s.llm.ModelName(),
	}

	if broadcast && c.Lane != core.LaneOperation {
		c.Lane = core.LaneOperation
		c.ThesisMatchScore = nil
		c.Category = ""
	}

	switch c.Lane {
	case core.LaneOpportunity:
		c.ImportanceScore = *c.ThesisMatchScore
		if c.Category == "" {
			c.Category = opportunityCategory
		}
	default:
		c.ImportanceScore = priorityImportance[c.Priority]
		if c.Category == "" || c.Category == opportunityCategory {
			c.Category = priorityCategory[c.Priority]
		}
	}
	return c
}

// generate calls the model under the rate limit, retrying transport failures
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryWait
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxAttempts-1)), ctx)

	var response string
	err := backoff.Retry(func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var err error
		response, err = s.llm.Generate(ctx, prompt)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return backoff.Permanent(err)
		}
		if err != nil {
			s.logger.Debug("Model call failed", zap.Error(err))
		}
		return err
	}, policy)
	return response, err
}
