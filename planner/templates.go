package planner

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StepTemplate is one abstract step in a goal class's action template: a
// tool role plus which parameters must be bound versus can be derived
// from prior step output.
type StepTemplate struct {
	ToolName        string            `yaml:"tool"`
	RequiredParams  []string          `yaml:"required_params"`
	DerivableParams map[string]string `yaml:"derivable_params"` // param -> "@<prior-step-tool-name>"
	Rationale       string            `yaml:"rationale"`
	OutcomeTag      string            `yaml:"outcome_tag"`
}

// ClassTemplate is the ordered template for a goal_class.
type ClassTemplate struct {
	Class    string         `yaml:"class"`
	Keywords []string       `yaml:"keywords"`
	Steps    []StepTemplate `yaml:"steps"`
}

// templatesFile is the top-level shape of a YAML templates document, e.g.:
//
//	classes:
//	  - class: research_summarize
//	    keywords: [summarize, research]
//	    steps:
//	      - tool: search
//	        required_params: [query]
type templatesFile struct {
	Classes []ClassTemplate `yaml:"classes"`
}

// LoadTemplatesFromYAML reads a set of ClassTemplates from a YAML file,
// letting operators override the built-in HTN templates without a
// rebuild, the same externalized-definition idiom gomind's workflow
// engine uses for its own YAML-defined DAGs.
func LoadTemplatesFromYAML(path string) ([]ClassTemplate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("planner: reading templates file: %w", err)
	}
	var doc templatesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("planner: parsing templates file: %w", err)
	}
	if len(doc.Classes) == 0 {
		return nil, fmt.Errorf("planner: templates file %s defines no classes", path)
	}
	return doc.Classes, nil
}

// builtinTemplates are the HTN-style templates used when no learning-store
// hint applies. Keyword sets are intentionally small and literal; the
// planner falls back to token-overlap matching, not semantic understanding.
func builtinTemplates() []ClassTemplate {
	return []ClassTemplate{
		{
			Class:    "research_summarize",
			Keywords: []string{"summarize", "research", "report", "brief"},
			Steps: []StepTemplate{
				{ToolName: "search", RequiredParams: []string{"query"}, Rationale: "gather source material"},
				{ToolName: "summarize", RequiredParams: []string{"input"},
					DerivableParams: map[string]string{"input": "@search"}, Rationale: "condense findings"},
			},
		},
		{
			Class:    "fetch_transform",
			Keywords: []string{"fetch", "download", "convert", "transform", "extract"},
			Steps: []StepTemplate{
				{ToolName: "fetch", RequiredParams: []string{"source"}, Rationale: "retrieve raw data"},
				{ToolName: "transform", RequiredParams: []string{"input", "format"},
					DerivableParams: map[string]string{"input": "@fetch"}, Rationale: "reshape data"},
			},
		},
		{
			Class:    "notify",
			Keywords: []string{"notify", "alert", "message", "email"},
			Steps: []StepTemplate{
				{ToolName: "compose", RequiredParams: []string{"topic"}, Rationale: "draft the message"},
				{ToolName: "send", RequiredParams: []string{"recipient", "body"},
					DerivableParams: map[string]string{"body": "@compose"}, Rationale: "deliver the message"},
			},
		},
		{
			Class:    "generic",
			Keywords: nil,
			Steps: []StepTemplate{
				{ToolName: "search", RequiredParams: []string{"query"}, Rationale: "gather information about the goal"},
			},
		},
	}
}

// classifyByKeywords returns the first non-generic template whose keyword
// set overlaps description's tokens, or the generic template otherwise.
func classifyByKeywords(description string, templates []ClassTemplate) ClassTemplate {
	tokens := tokenSet(description)
	var generic ClassTemplate
	for _, tmpl := range templates {
		if tmpl.Class == "generic" {
			generic = tmpl
			continue
		}
		for _, kw := range tmpl.Keywords {
			if tokens[kw] {
				return tmpl
			}
		}
	}
	return generic
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,!?;:\"'()")
		if f != "" {
			out[f] = true
		}
	}
	return out
}
