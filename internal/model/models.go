// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
)

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo contains information about a completion model.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Tier categorizes the model's capability level
	Tier string `json:"tier"`

	// MaxTokens is the maximum context window size
	MaxTokens int `json:"max_tokens"`

	// Description is a brief explanation of the model's strengths
	Description string `json:"description"`
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// DefaultGatewayModel is used by the gateway when a request names no model.
const DefaultGatewayModel = "gemini-1.5-flash"

// DefaultClientModel is the model a fresh client settings record asks for.
const DefaultClientModel = "gemini-pro"

// Models is the ordered list of models advertised by the chat endpoint.
var Models = []ModelInfo{
	{
		ID:          "gemini-1.5-flash",
		Name:        "Gemini 1.5 Flash",
		Tier:        "Fast",
		MaxTokens:   1000000,
		Description: "Fast and versatile for most chat tasks",
	},
	{
		ID:          "gemini-1.5-pro",
		Name:        "Gemini 1.5 Pro",
		Tier:        "Powerful",
		MaxTokens:   2000000,
		Description: "Complex reasoning over long context",
	},
	{
		ID:          "gemini-pro",
		Name:        "Gemini Pro",
		Tier:        "Balanced",
		MaxTokens:   32000,
		Description: "General purpose text generation",
	},
}

// ModelIDs returns the IDs of all registered models in registry order.
func ModelIDs() []string {
	ids := make([]string, 0, len(Models))
	for _, m := range Models {
		ids = append(ids, m.ID)
	}
	return ids
}

// GetModelInfo looks up a model by ID, then by case-insensitive name match.
func GetModelInfo(nameOrID string) (ModelInfo, bool) {
	for _, info := range Models {
		if info.ID == nameOrID {
			return info, true
		}
	}
	lower := strings.ToLower(nameOrID)
	if lower == "" {
		return ModelInfo{}, false
	}
	for _, info := range Models {
		if strings.Contains(strings.ToLower(info.Name), lower) {
			return info, true
		}
	}
	return ModelInfo{}, false
}

// ContextString returns a formatted context window string.
func (m ModelInfo) ContextString() string {
	if m.MaxTokens >= 1000000 {
		return fmt.Sprintf("%.1fM tokens", float64(m.MaxTokens)/1000000)
	}
	if m.MaxTokens >= 1000 {
		return fmt.Sprintf("%dK tokens", m.MaxTokens/1000)
	}
	return fmt.Sprintf("%d tokens", m.MaxTokens)
}
