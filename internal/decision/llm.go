package decision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
)

// systemPrompt fixes the model's contract: one strict JSON object, one
// action from the offered set, message text only for send_message.
const systemPrompt = "You are an autonomous dating-app action selector and first-message writer. " +
	"Decide the safest next action for the current screen. " +
	"Return strict JSON with keys: action (string), reason (string), message_text (string|null), target_id (string|null). " +
	"Action must be exactly one of available_actions. " +
	"Respect profile persona_spec and hard_boundaries. " +
	"If action is send_message, provide concise message_text that follows opener_strategy and max_message_chars. " +
	"If action is not send_message, message_text must be null. " +
	"target_id, when set, must reference a target offered in the packet. " +
	"Do not include any additional keys."

type personaPayload struct {
	Archetype        string   `json:"archetype"`
	Intent           string   `json:"intent"`
	ToneTraits       []string `json:"tone_traits"`
	HardBoundaries   []string `json:"hard_boundaries"`
	PreferredSignals []string `json:"preferred_signals"`
	AvoidSignals     []string `json:"avoid_signals"`
	OpenerStrategy   string   `json:"opener_strategy"`
	Examples         []string `json:"examples"`
	MaxMessageChars  int      `json:"max_message_chars"`
	RequireQuestion  bool     `json:"require_question"`
}

type swipePayload struct {
	MinQualityScoreLike int      `json:"min_quality_score_like"`
	RequireFlagsAll     []string `json:"require_flags_all"`
	BlockPromptKeywords []string `json:"block_prompt_keywords"`
	MaxLikes            int      `json:"max_likes"`
	MaxPasses           int      `json:"max_passes"`
}

type messagePayload struct {
	Enabled                  bool   `json:"enabled"`
	MinQualityScoreToMessage int    `json:"min_quality_score_to_message"`
	MaxMessages              int    `json:"max_messages"`
	Template                 string `json:"template"`
}

type profilePayload struct {
	Name          string         `json:"name"`
	Persona       personaPayload `json:"persona_spec"`
	SwipePolicy   swipePayload   `json:"swipe_policy"`
	MessagePolicy messagePayload `json:"message_policy"`
}

// decisionPayload is the full context serialized into the user prompt.
type decisionPayload struct {
	AvailableActions []schemas.ActionID           `json:"available_actions"`
	ActionCatalog    []schemas.ActionCatalogEntry `json:"action_catalog"`
	CommandQuery     string                       `json:"command_query,omitempty"`
	Profile          profilePayload               `json:"profile"`
	Packet           *schemas.Packet              `json:"packet"`
}

// modelDecision is the JSON shape the model must return.
type modelDecision struct {
	Action      string  `json:"action"`
	Reason      string  `json:"reason"`
	MessageText *string `json:"message_text"`
	TargetID    *string `json:"target_id"`
}

// LLMPolicy drives the model-backed decision variant. It serializes the
// packet context, calls the model, and validates the structured response.
// Invalid responses become ModelErrors; they are never repaired.
type LLMPolicy struct {
	client schemas.LLMClient
	cfg    config.LLMModelConfig
	logger *zap.Logger
}

// NewLLMPolicy wires a model client to the decision contract.
func NewLLMPolicy(client schemas.LLMClient, cfg config.LLMModelConfig, logger *zap.Logger) *LLMPolicy {
	return &LLMPolicy{client: client, cfg: cfg, logger: logger.Named("llm_policy")}
}

// Decide asks the model for one plan. The returned trace is non-nil whenever
// a call reached the client, including on failure.
func (p *LLMPolicy) Decide(ctx context.Context, packet *schemas.Packet, profile config.ProfileConfig, directive *Directive, screenshot []byte) (schemas.ActionPlan, *schemas.LLMTrace, error) {
	userPrompt, err := p.buildUserPrompt(packet, profile, directive)
	if err != nil {
		return schemas.ActionPlan{}, nil, &schemas.ModelError{Model: p.cfg.Model, Op: "serialize context", Err: err}
	}

	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Options: schemas.GenerationOptions{
			Temperature:     p.cfg.Temperature,
			ForceJSONFormat: true,
			MaxOutputTokens: p.cfg.MaxTokens,
		},
	}
	if p.cfg.IncludeScreenshot && len(screenshot) > 0 {
		req.Image = &schemas.ImagePart{MIMEType: "image/png", Data: screenshot}
	}

	result, err := p.client.Generate(ctx, req)
	trace := &result.Trace
	if err != nil {
		return schemas.ActionPlan{}, trace, err
	}

	decision, err := parseModelDecision(result.Text)
	if err != nil {
		return schemas.ActionPlan{}, trace, &schemas.ModelError{Model: p.cfg.Model, Op: "parse decision", Err: err}
	}

	plan := schemas.ActionPlan{
		ActionID: schemas.ActionID(decision.Action),
		Reason:   decision.Reason,
		TargetID: decision.TargetID,
		Source:   schemas.SourceLLM,
	}
	if plan.Reason == "" {
		plan.Reason = "llm_selected_action"
	}
	// Non-message actions drop any stray text so the log shape stays
	// deterministic; for send_message the text is validated as returned.
	if plan.ActionID == schemas.ActionSendMessage {
		plan.MessageText = decision.MessageText
	}

	if issues := ValidatePlan(plan, packet.AvailableActions, packet.LikeCandidates, profile.Persona); len(issues) > 0 {
		parts := make([]string, len(issues))
		for i, issue := range issues {
			parts[i] = issue.String()
		}
		return schemas.ActionPlan{}, trace, &schemas.ModelError{
			Model: p.cfg.Model,
			Op:    "validate decision",
			Err:   fmt.Errorf("rejected plan for %q: %s", plan.ActionID, strings.Join(parts, "; ")),
		}
	}

	return plan, trace, nil
}

func (p *LLMPolicy) buildUserPrompt(packet *schemas.Packet, profile config.ProfileConfig, directive *Directive) (string, error) {
	capped := *packet
	if n := p.cfg.MaxObservedStrings; n > 0 && len(capped.ObservedStrings) > n {
		capped.ObservedStrings = capped.ObservedStrings[:n]
	}

	requireFlags := append([]string(nil), profile.Swipe.RequireFlagsAll...)
	sort.Strings(requireFlags)

	payload := decisionPayload{
		AvailableActions: packet.AvailableActions,
		ActionCatalog:    schemas.Catalog(),
		CommandQuery:     directive.Query,
		Profile: profilePayload{
			Name: profile.Name,
			Persona: personaPayload{
				Archetype:        profile.Persona.Archetype,
				Intent:           profile.Persona.Intent,
				ToneTraits:       profile.Persona.ToneTraits,
				HardBoundaries:   profile.Persona.HardBoundaries,
				PreferredSignals: profile.Persona.PreferredSignals,
				AvoidSignals:     profile.Persona.AvoidSignals,
				OpenerStrategy:   profile.Persona.OpenerStrategy,
				Examples:         profile.Persona.Examples,
				MaxMessageChars:  profile.Persona.MaxMessageChars,
				RequireQuestion:  profile.Persona.RequireQuestion,
			},
			SwipePolicy: swipePayload{
				MinQualityScoreLike: profile.Swipe.MinQualityScoreLike,
				RequireFlagsAll:     requireFlags,
				BlockPromptKeywords: profile.Swipe.BlockPromptKeywords,
				MaxLikes:            profile.Swipe.MaxLikes,
				MaxPasses:           profile.Swipe.MaxPasses,
			},
			MessagePolicy: messagePayload{
				Enabled:                  profile.Message.Enabled,
				MinQualityScoreToMessage: profile.Message.MinQualityScoreToMessage,
				MaxMessages:              profile.Message.MaxMessages,
				Template:                 profile.Message.Template,
			},
		},
		Packet: &capped,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// parseModelDecision accepts either a bare JSON object or one embedded in
// surrounding prose or code fences. The embedded form is recovered by
// slicing from the first "{" to the last "}".
func parseModelDecision(raw string) (modelDecision, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return modelDecision{}, errors.New("model response was empty")
	}

	var decision modelDecision
	if err := json.Unmarshal([]byte(text), &decision); err == nil && decision.Action != "" {
		return decision, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return modelDecision{}, errors.New("no JSON object in model response")
	}
	decision = modelDecision{}
	if err := json.Unmarshal([]byte(text[start:end+1]), &decision); err != nil {
		return modelDecision{}, fmt.Errorf("malformed decision JSON: %w", err)
	}
	if decision.Action == "" {
		return modelDecision{}, errors.New("model decision is missing an action")
	}
	return decision, nil
}
