package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"reckon/internal/entity"
)

const (
	maxPromptCandidates = 5
	maxPromptContacts   = 3
)

const systemPrompt = `You reconcile newly observed entities against a knowledge store.
For the entity you are given, decide one of:
- "merge": the entity is the same as an existing one (combine data into it)
- "update": the entity adds new information to an existing one (same organization, new contact)
- "create": the entity is genuinely new

Guidelines:
- Names that are variations of the same entity: merge
- Same email domain and similar names: merge
- Same organization, different division: update
- Similar name but different industry: create
- No convincing match: create

Return ONLY valid JSON of the form:
{"action": "merge|update|create", "target_path": "path/to/entity or null", "confidence": 0.0-1.0, "reasoning": "brief explanation"}
A target_path is required for merge and update and must be one of the listed candidate paths.`

type promptCandidate struct {
	Path      string  `json:"path"`
	Name      string  `json:"name"`
	MatchType string  `json:"match_type"`
	Score     float64 `json:"score"`
}

type promptEntity struct {
	Name       string            `json:"name"`
	Type       string            `json:"type,omitempty"`
	Industry   string            `json:"industry,omitempty"`
	Contacts   []entity.Contact  `json:"contacts,omitempty"`
	Candidates []promptCandidate `json:"candidates"`
}

func buildPrompt(candidate entity.Candidate, candidates []entity.MatchCandidate) (string, error) {
	contacts := candidate.Contacts
	if len(contacts) > maxPromptContacts {
		contacts = contacts[:maxPromptContacts]
	}
	top := candidates
	if len(top) > maxPromptCandidates {
		top = top[:maxPromptCandidates]
	}
	prompt := promptEntity{
		Name:       candidate.Name,
		Type:       candidate.Type,
		Industry:   candidate.Industry,
		Contacts:   contacts,
		Candidates: make([]promptCandidate, 0, len(top)),
	}
	for _, match := range top {
		prompt.Candidates = append(prompt.Candidates, promptCandidate{
			Path:      match.Path,
			Name:      match.Name,
			MatchType: match.MatchType,
			Score:     match.Score,
		})
	}
	encoded, err := json.MarshalIndent(prompt, "", "  ")
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

type outcomePayload struct {
	Action     string  `json:"action"`
	TargetPath string  `json:"target_path"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func parseOutcome(content string) (Outcome, error) {
	var empty Outcome
	var payload outcomePayload
	if err := decodeModelJSON(content, &payload); err != nil {
		return empty, fmt.Errorf("parse payload: %w", err)
	}
	action, ok := entity.ParseAction(payload.Action)
	if !ok {
		return empty, fmt.Errorf("parse payload: unknown action %q", payload.Action)
	}
	target := strings.TrimSpace(payload.TargetPath)
	if strings.EqualFold(target, "null") {
		target = ""
	}
	if target == "" && (action == entity.ActionMerge || action == entity.ActionUpdate) {
		return empty, fmt.Errorf("parse payload: action %q requires a target path", action)
	}
	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return Outcome{
		Action:     action,
		TargetPath: target,
		Confidence: confidence,
		Reasoning:  strings.TrimSpace(payload.Reasoning),
	}, nil
}

// decodeModelJSON decodes JSON from a model response, tolerating code fences
// and prose around the object.
func decodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}

	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return directErr
	}
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return err
	}
	return nil
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFenceBlock(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFenceBlock(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := trimmed[3:]
	body = strings.TrimLeft(body, " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}
