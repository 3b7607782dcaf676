package config

import (
	"fmt"
	"strings"
)

var knownProviderTypes = map[string]bool{
	"openai":  true,
	"ollama":  true,
	"bedrock": true,
}

// Validate checks a loaded config for structural problems that would make
// startup unsafe. Handoff graph semantics (orchestrator presence, return
// edges) are validated by the graph builder, which owns those rules.
func Validate(cfg *Config) error {
	var problems []string

	for _, p := range cfg.LLM.Providers {
		if p.Name == "" {
			problems = append(problems, "llm provider with empty name")
			continue
		}
		if !knownProviderTypes[p.Type] {
			problems = append(problems, fmt.Sprintf("llm provider %q has unknown type %q", p.Name, p.Type))
		}
	}
	if cfg.LLM.DefaultProvider != "" {
		found := false
		for _, p := range cfg.LLM.Providers {
			if p.Name == cfg.LLM.DefaultProvider {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("default_provider %q not in providers list", cfg.LLM.DefaultProvider))
		}
	}

	if cfg.Affinity.Capacity <= 0 {
		problems = append(problems, "affinity.capacity must be positive")
	}
	if cfg.Affinity.TTL <= 0 {
		problems = append(problems, "affinity.ttl must be positive")
	}

	if cfg.Orchestration.Enabled {
		if len(cfg.Orchestration.Specialists) == 0 {
			problems = append(problems, "orchestration enabled but no specialists declared")
		}
		if cfg.Orchestration.MaxIterations <= 0 {
			problems = append(problems, "orchestration.max_iterations must be positive")
		}
	}

	if cfg.Keyword.DefaultRole == "" {
		problems = append(problems, "keyword.default_role must be set")
	}
	for i, r := range cfg.Keyword.Rules {
		if len(r.Keywords) == 0 || r.Role == "" {
			problems = append(problems, fmt.Sprintf("keyword rule %d is incomplete", i))
		}
	}

	if cfg.Static.Fallback == "" {
		problems = append(problems, "static.fallback must be a non-empty reply")
	}
	if cfg.Selector.Apology == "" {
		problems = append(problems, "selector.apology must be a non-empty reply")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
