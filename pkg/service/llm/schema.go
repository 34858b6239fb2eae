package llm

import (
	"slices"

	"github.com/m-mizutani/gollem"
)

func stringList(description string) *gollem.Parameter {
	return &gollem.Parameter{
		Type:        gollem.TypeArray,
		Description: description,
		Items:       &gollem.Parameter{Type: gollem.TypeString},
		Required:    true,
	}
}

// AnalysisSchema returns the response schema every provider is asked to
// fill. All members are required at every level.
func AnalysisSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "AnalysisResult",
		Description: "Structured threat intelligence extracted from a malware behavior report",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"malware_family_guess": {
				Type:        gollem.TypeString,
				Description: "A plausible malware family guess (e.g. 'Zeus', 'WannaCry', 'Unknown Dropper').",
				Required:    true,
			},
			"summary": {
				Type:        gollem.TypeString,
				Description: "A brief high-level summary of the malware's purpose and main behavior.",
				Required:    true,
			},
			"key_behaviors": {
				Type:        gollem.TypeObject,
				Description: "Observed behaviors grouped by subsystem.",
				Required:    true,
				Properties: map[string]*gollem.Parameter{
					"file_system": stringList("Behaviors related to file creation, deletion or modification."),
					"registry":    stringList("Behaviors related to Windows registry creation, deletion or modification."),
					"network":     stringList("Network behaviors such as DNS queries, IP connections and HTTP requests."),
				},
			},
			"mitre_attack_techniques": {
				Type:        gollem.TypeArray,
				Description: "MITRE ATT&CK techniques the behavior maps to.",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"technique_id": {
							Type:        gollem.TypeString,
							Description: "MITRE ATT&CK technique ID (e.g. T1059.001).",
							Required:    true,
						},
						"technique_name": {
							Type:        gollem.TypeString,
							Description: "Technique name.",
							Required:    true,
						},
						"description": {
							Type:        gollem.TypeString,
							Description: "How the malware behavior maps to this technique.",
							Required:    true,
						},
					},
				},
			},
			"indicators_of_compromise": {
				Type:        gollem.TypeObject,
				Description: "Indicators of compromise found in the report.",
				Required:    true,
				Properties: map[string]*gollem.Parameter{
					"files":         stringList("Created or dropped file paths or names."),
					"domains":       stringList("Domains contacted by the malware."),
					"ips":           stringList("IP addresses contacted by the malware."),
					"registry_keys": stringList("Registry keys created or modified."),
				},
			},
		},
	}
}

// JSONSchema converts p into a plain JSON Schema object as used by
// function-calling APIs.
func JSONSchema(p *gollem.Parameter) map[string]any {
	if p == nil {
		return nil
	}

	out := map[string]any{
		"type": string(p.Type),
	}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if p.Items != nil {
		out["items"] = JSONSchema(p.Items)
	}
	if len(p.Properties) > 0 {
		props := make(map[string]any, len(p.Properties))
		var required []string
		for name, child := range p.Properties {
			props[name] = JSONSchema(child)
			if child.Required {
				required = append(required, name)
			}
		}
		slices.Sort(required)
		out["properties"] = props
		if len(required) > 0 {
			out["required"] = required
		}
	}
	return out
}

// RequiredProperties returns the sorted names of p's required members
func RequiredProperties(p *gollem.Parameter) []string {
	var names []string
	for name, child := range p.Properties {
		if child.Required {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
