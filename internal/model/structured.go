package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
)

// ParseStructured extracts the JSON object from a raw model response and
// unmarshals it into target, repairing malformed output when possible.
func ParseStructured(raw string, target interface{}) error {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return fmt.Errorf("no JSON found in model response")
	}

	// Fast path: the output is already valid.
	if err := json.Unmarshal([]byte(jsonStr), target); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(jsonStr)
	if err != nil {
		return fmt.Errorf("JSON repair failed: %w", err)
	}

	log.Debug().
		Int("original_bytes", len(jsonStr)).
		Int("repaired_bytes", len(repaired)).
		Msg("Repaired malformed model JSON")

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("JSON parsing failed after repair: %w", err)
	}
	return nil
}

// extractJSON pulls the JSON payload out of a response that may wrap it
// in markdown fences or surround it with explanatory prose.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Prefer a fenced block when present.
	if idx := strings.Index(raw, "```"); idx != -1 {
		rest := raw[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end != -1 {
			if candidate := strings.TrimSpace(rest[:end]); candidate != "" {
				return candidate
			}
		}
	}

	// Otherwise take the outermost braces.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end > start {
		return raw[start : end+1]
	}

	return ""
}
