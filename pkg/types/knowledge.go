// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"sort"
	"strings"
)

// VulnerabilityBehavior is the generalized description of the code behavior
// that leads to a vulnerability, as synthesized by the final analysis stage.
type VulnerabilityBehavior struct {
	// CauseDescription names the root cause in general terms.
	CauseDescription string `json:"vulnerability_cause_description" yaml:"vulnerability_cause_description"`

	// TriggerCondition describes what an attacker must do to reach the flaw.
	TriggerCondition string `json:"trigger_condition" yaml:"trigger_condition"`

	// CodeBehavior describes the specific code behavior causing the
	// vulnerability, generalized away from concrete identifiers.
	CodeBehavior string `json:"specific_code_behavior_causing_vulnerability" yaml:"specific_code_behavior_causing_vulnerability"`
}

// VulnerabilityKnowledge is the structured result of the four-stage analysis
// of one raw diff record. Immutable once created; produced only on success.
type VulnerabilityKnowledge struct {
	ID    RecordID `json:"id" yaml:"id"`
	CVEID string   `json:"CVE_id" yaml:"CVE_id"`

	Behavior VulnerabilityBehavior `json:"vulnerability_behavior" yaml:"vulnerability_behavior"`
	Solution string                `json:"solution" yaml:"solution"`

	// Intermediate chain-of-thought artifacts from the earlier stages.
	Purpose  string `json:"purpose" yaml:"purpose"`
	Function string `json:"function" yaml:"function"`
	Analysis string `json:"analysis" yaml:"analysis"`

	// Originating record data, carried along for downstream consumers.
	CodeBefore    string        `json:"code_before_change" yaml:"code_before_change"`
	CodeAfter     string        `json:"code_after_change" yaml:"code_after_change"`
	ModifiedLines ModifiedLines `json:"modified_lines" yaml:"modified_lines"`

	// Flat copies of the nested behavior fields, kept because downstream
	// tooling reads a flat schema.
	CauseDescription string `json:"vulnerability_cause_description" yaml:"vulnerability_cause_description"`
	TriggerCondition string `json:"trigger_condition" yaml:"trigger_condition"`
	CodeBehavior     string `json:"specific_code_behavior_causing_vulnerability" yaml:"specific_code_behavior_causing_vulnerability"`
}

// Validate checks that all required knowledge fields are present and
// non-empty.
func (k *VulnerabilityKnowledge) Validate() error {
	var missing []string
	for field, value := range map[string]string{
		"vulnerability_cause_description":              k.Behavior.CauseDescription,
		"trigger_condition":                            k.Behavior.TriggerCondition,
		"specific_code_behavior_causing_vulnerability": k.Behavior.CodeBehavior,
		"solution": k.Solution,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required knowledge fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Flatten copies the nested behavior fields into their flat counterparts.
func (k *VulnerabilityKnowledge) Flatten() {
	k.CauseDescription = k.Behavior.CauseDescription
	k.TriggerCondition = k.Behavior.TriggerCondition
	k.CodeBehavior = k.Behavior.CodeBehavior
}
