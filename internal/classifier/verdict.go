package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mikey/inbox-triage/internal/core"
)

// Verdict is the validated answer of the model
type Verdict struct {
	Lane             core.Lane
	Priority         core.Priority
	ThesisMatchScore *int
	Category         string
	Summary          string
}

type verdictResponse struct {
	Lane             string          `json:"lane"`
	Priority         string          `json:"priority"`
	ThesisMatchScore json.RawMessage `json:"thesis_match_score"`
	Category         string          `json:"category"`
	Summary          string          `json:"summary"`
}

// ParseVerdict strictly validates a model response.
// Any missing or out-of-range field yields core.ErrClassificationFailed.
func ParseVerdict(response string) (*Verdict, error) {
	obj, err := extractObject(response)
	if err != nil {
		return nil, err
	}

	var resp verdictResponse
	dec := json.NewDecoder(bytes.NewReader(obj))
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", core.ErrClassificationFailed, err)
	}

	v := &Verdict{
		Lane:     core.Lane(strings.ToLower(strings.TrimSpace(resp.Lane))),
		Priority: core.Priority(strings.ToLower(strings.TrimSpace(resp.Priority))),
		Category: strings.ToUpper(strings.TrimSpace(resp.Category)),
		Summary:  strings.TrimSpace(resp.Summary),
	}
	if !v.Lane.Valid() {
		return nil, fmt.Errorf("%w: unknown lane %q", core.ErrClassificationFailed, resp.Lane)
	}
	if !v.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", core.ErrClassificationFailed, resp.Priority)
	}

	if v.Lane == core.LaneOpportunity {
		score, err := parseScore(resp.ThesisMatchScore)
		if err != nil {
			return nil, err
		}
		v.ThesisMatchScore = &score
	}
	return v, nil
}

func parseScore(raw json.RawMessage) (int, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, fmt.Errorf("%w: opportunity without thesis_match_score", core.ErrClassificationFailed)
	}
	score, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: thesis_match_score %s is not an integer", core.ErrClassificationFailed, text)
	}
	if score < 0 || score > 100 {
		return 0, fmt.Errorf("%w: thesis_match_score %d out of range", core.ErrClassificationFailed, score)
	}
	return score, nil
}

// extractObject pulls the outermost JSON object out of a model reply,
// tolerating code fences and surrounding prose
func extractObject(response string) ([]byte, error) {
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", core.ErrClassificationFailed)
	}
	return []byte(response[start : end+1]), nil
}
