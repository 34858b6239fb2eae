package model

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
)

// KeyBehaviors groups observed behaviors by subsystem
type KeyBehaviors struct {
	FileSystem []string `json:"file_system" yaml:"file_system"`
	Registry   []string `json:"registry" yaml:"registry"`
	Network    []string `json:"network" yaml:"network"`
}

// MitreTechnique is one MITRE ATT&CK technique mapped from the report
type MitreTechnique struct {
	TechniqueID   string `json:"technique_id" yaml:"technique_id"`
	TechniqueName string `json:"technique_name" yaml:"technique_name"`
	Description   string `json:"description" yaml:"description"`
}

// Indicators holds indicators of compromise extracted from the report
type Indicators struct {
	Files        []string `json:"files" yaml:"files"`
	Domains      []string `json:"domains" yaml:"domains"`
	IPs          []string `json:"ips" yaml:"ips"`
	RegistryKeys []string `json:"registry_keys" yaml:"registry_keys"`
}

// AnalysisResult is the provider-independent outcome of one extraction
type AnalysisResult struct {
	MalwareFamilyGuess     string           `json:"malware_family_guess" yaml:"malware_family_guess"`
	Summary                string           `json:"summary" yaml:"summary"`
	KeyBehaviors           KeyBehaviors     `json:"key_behaviors" yaml:"key_behaviors"`
	MitreAttackTechniques  []MitreTechnique `json:"mitre_attack_techniques" yaml:"mitre_attack_techniques"`
	IndicatorsOfCompromise Indicators       `json:"indicators_of_compromise" yaml:"indicators_of_compromise"`
}

// Envelope types with pointer fields so that absent and null members can be
// told apart from empty ones.
type analysisEnvelope struct {
	MalwareFamilyGuess     *string               `json:"malware_family_guess"`
	Summary                *string               `json:"summary"`
	KeyBehaviors           *keyBehaviorsEnvelope `json:"key_behaviors"`
	MitreAttackTechniques  *[]*techniqueEnvelope `json:"mitre_attack_techniques"`
	IndicatorsOfCompromise *indicatorsEnvelope   `json:"indicators_of_compromise"`
}

type keyBehaviorsEnvelope struct {
	FileSystem *[]string `json:"file_system"`
	Registry   *[]string `json:"registry"`
	Network    *[]string `json:"network"`
}

type techniqueEnvelope struct {
	TechniqueID   *string `json:"technique_id"`
	TechniqueName *string `json:"technique_name"`
	Description   *string `json:"description"`
}

type indicatorsEnvelope struct {
	Files        *[]string `json:"files"`
	Domains      *[]string `json:"domains"`
	IPs          *[]string `json:"ips"`
	RegistryKeys *[]string `json:"registry_keys"`
}

func violation(field string) error {
	return goerr.Wrap(ErrSchemaViolation, "required field is missing", goerr.V(FieldKey, field))
}

func requireList(field string, v *[]string) ([]string, error) {
	if v == nil || *v == nil {
		return nil, violation(field)
	}
	out := make([]string, len(*v))
	copy(out, *v)
	return out, nil
}

// ParseAnalysisResult decodes a provider payload into an AnalysisResult.
// Every required member must be present; arrays must be arrays and the
// summary must not be empty. Partial results are never returned.
func ParseAnalysisResult(data []byte) (*AnalysisResult, error) {
	var env analysisEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, goerr.Wrap(ErrSchemaViolation, "payload is not a valid analysis object",
			goerr.V(ResponseKey, Truncate(string(data), 512)),
			goerr.V("cause", err.Error()),
		)
	}

	if env.MalwareFamilyGuess == nil {
		return nil, violation("malware_family_guess")
	}
	if env.Summary == nil || strings.TrimSpace(*env.Summary) == "" {
		return nil, violation("summary")
	}
	if env.KeyBehaviors == nil {
		return nil, violation("key_behaviors")
	}
	if env.MitreAttackTechniques == nil || *env.MitreAttackTechniques == nil {
		return nil, violation("mitre_attack_techniques")
	}
	if env.IndicatorsOfCompromise == nil {
		return nil, violation("indicators_of_compromise")
	}

	result := &AnalysisResult{
		MalwareFamilyGuess:    *env.MalwareFamilyGuess,
		Summary:               *env.Summary,
		MitreAttackTechniques: make([]MitreTechnique, 0, len(*env.MitreAttackTechniques)),
	}

	var err error
	kb := env.KeyBehaviors
	if result.KeyBehaviors.FileSystem, err = requireList("key_behaviors.file_system", kb.FileSystem); err != nil {
		return nil, err
	}
	if result.KeyBehaviors.Registry, err = requireList("key_behaviors.registry", kb.Registry); err != nil {
		return nil, err
	}
	if result.KeyBehaviors.Network, err = requireList("key_behaviors.network", kb.Network); err != nil {
		return nil, err
	}

	for _, tech := range *env.MitreAttackTechniques {
		if tech == nil || tech.TechniqueID == nil || tech.TechniqueName == nil || tech.Description == nil {
			return nil, violation("mitre_attack_techniques[]")
		}
		result.MitreAttackTechniques = append(result.MitreAttackTechniques, MitreTechnique{
			TechniqueID:   *tech.TechniqueID,
			TechniqueName: *tech.TechniqueName,
			Description:   *tech.Description,
		})
	}

	ioc := env.IndicatorsOfCompromise
	if result.IndicatorsOfCompromise.Files, err = requireList("indicators_of_compromise.files", ioc.Files); err != nil {
		return nil, err
	}
	if result.IndicatorsOfCompromise.Domains, err = requireList("indicators_of_compromise.domains", ioc.Domains); err != nil {
		return nil, err
	}
	if result.IndicatorsOfCompromise.IPs, err = requireList("indicators_of_compromise.ips", ioc.IPs); err != nil {
		return nil, err
	}
	if result.IndicatorsOfCompromise.RegistryKeys, err = requireList("indicators_of_compromise.registry_keys", ioc.RegistryKeys); err != nil {
		return nil, err
	}

	return result, nil
}

// Copy returns a deep copy of the result
func (r *AnalysisResult) Copy() *AnalysisResult {
	if r == nil {
		return nil
	}
	c := *r
	c.KeyBehaviors = KeyBehaviors{
		FileSystem: cloneStrings(r.KeyBehaviors.FileSystem),
		Registry:   cloneStrings(r.KeyBehaviors.Registry),
		Network:    cloneStrings(r.KeyBehaviors.Network),
	}
	c.MitreAttackTechniques = append(make([]MitreTechnique, 0, len(r.MitreAttackTechniques)), r.MitreAttackTechniques...)
	c.IndicatorsOfCompromise = Indicators{
		Files:        cloneStrings(r.IndicatorsOfCompromise.Files),
		Domains:      cloneStrings(r.IndicatorsOfCompromise.Domains),
		IPs:          cloneStrings(r.IndicatorsOfCompromise.IPs),
		RegistryKeys: cloneStrings(r.IndicatorsOfCompromise.RegistryKeys),
	}
	return &c
}

func cloneStrings(v []string) []string {
	return append(make([]string, 0, len(v)), v...)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// RuleName returns the YARA rule identifier derived from the family guess.
// Whitespace runs become underscores; an empty guess yields
// "Suspicious_Behavior".
func (r *AnalysisResult) RuleName() string {
	label := whitespaceRun.ReplaceAllString(strings.TrimSpace(r.MalwareFamilyGuess), "_")
	if label == "" {
		label = "Behavior"
	}
	return "Suspicious_" + label
}

// keyIndicatorMinLen is the exclusive lower bound on indicator length used
// for rule strings. Short values match too broadly.
const keyIndicatorMinLen = 5

// KeyIndicators returns file, registry key and domain indicators suitable as
// rule strings: longer than five characters, deduplicated, order preserved.
// IP addresses are not included.
func (r *AnalysisResult) KeyIndicators() []string {
	ioc := r.IndicatorsOfCompromise
	seen := make(map[string]struct{})
	out := []string{}

	for _, group := range [][]string{ioc.Files, ioc.RegistryKeys, ioc.Domains} {
		for _, v := range group {
			if utf8.RuneCountInString(v) <= keyIndicatorMinLen {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// Truncate bounds s to at most maxLen bytes for error values and logs. The
// cut backs off to a rune boundary.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "... (truncated)"
}
