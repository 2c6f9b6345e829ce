// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/vulnkb/internal/llm"
	"github.com/pdiddy/vulnkb/pkg/types"
)

// prefixTmpl introduces the vulnerable snippet and its description. Every
// stage prompt opens with it so each request is self-contained.
var prefixTmpl = template.Must(template.New("prefix").Parse(`This is a code snippet with a vulnerability {{.CVE}}:
'''
{{.Before}}
'''
The vulnerability is described as follows:
{{.Description}}
`))

const purposeQuestion = `What is the purpose of the function in the above code snippet? Please summarize the answer in one sentence with following format: Function purpose: ""`

const functionQuestion = `Please summarize the functions of the above code snippet in the list format without other explanation: "The functions of the code snippet are: 1. 2. 3."`

const analysisQuestion = `Why is the above modification necessary?`

// knowledgeQuestion asks for the final structured synthesis. The example
// pins the expected level of generalization and the exact JSON shape.
const knowledgeQuestion = `I want you to act as a vulnerability detection expert and organize vulnerability knowledge based on the above vulnerability repair information. Please summarize the generalizable specific behavior of the code that leads to the vulnerability and the specific solution to fix it. Format your findings in JSON.

Here is an example to guide you on the level of detail expected in your extraction:

{
    "vulnerability_behavior": {
        "vulnerability_cause_description": "Lack of proper handling for asynchronous events during device removal process.",
        "trigger_condition": "A physically proximate attacker unplugs a device while the removal function is executing, leading to a race condition and use-after-free vulnerability.",
        "specific_code_behavior_causing_vulnerability": "The code does not cancel pending work associated with a specific functionality before proceeding with further cleanup during device removal. This can result in a use-after-free scenario if the device is unplugged at a critical moment."
    },
    "solution": "To mitigate the vulnerability, it is necessary to cancel any pending work related to the specific functionality before proceeding with further cleanup during device removal. This ensures that the code handles asynchronous events properly and prevents the use-after-free vulnerability."
}

IMPORTANT:
- In the 'solution' field, describe the solution in natural language format.
- Do NOT nest dictionaries or arrays within the 'solution' field.
- Do NOT nest within other fields either.
- Your answer should be exactly the same format as the example provided.
- Omit specific resource names to ensure the knowledge remains generalized (e.g., use mutex_lock instead of mutex_lock(&dmxdev->mutex)).
- Return ONLY valid JSON, no markdown formatting like ` + "```json." + `

`

// purposePrefix and functionPrefix are the answer formats the stage prompts
// request; responses are trimmed to the text after them.
const (
	purposePrefix  = "Function purpose:"
	functionPrefix = "The functions of the code snippet are:"
)

// renderPrefix builds the shared prompt preamble for a record.
func renderPrefix(record types.RawDiffRecord) (string, error) {
	var buf bytes.Buffer
	err := prefixTmpl.Execute(&buf, struct {
		CVE         string
		Before      string
		Description string
	}{
		CVE:         record.CVEID,
		Before:      record.CodeBefore,
		Description: record.CVEDescription,
	})
	if err != nil {
		return "", fmt.Errorf("rendering prompt prefix: %w", err)
	}
	return buf.String(), nil
}

// analysisPrompt builds the stage 3 prompt: the fix's modified lines and,
// when lines were added, the patched code, followed by the why-question.
func analysisPrompt(prefix string, record types.RawDiffRecord) string {
	lines, err := json.MarshalIndent(record.ModifiedLines, "", "  ")
	if err != nil {
		lines = []byte("{}")
	}

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString("The correct way to fix it is by adding/deleting\n'''\n")
	b.Write(lines)
	b.WriteString("\n'''\n")
	if len(record.ModifiedLines.Added) > 0 {
		b.WriteString("The code after modification is as follows:\n'''\n")
		b.WriteString(record.CodeAfter)
		b.WriteString("\n'''\n")
	}
	b.WriteString(analysisQuestion)
	return b.String()
}

// knowledgeDoc is the JSON shape stage 4 must return. Some models nest the
// solution inside vulnerability_behavior; both placements are accepted.
type knowledgeDoc struct {
	Behavior struct {
		types.VulnerabilityBehavior
		Solution string `json:"solution"`
	} `json:"vulnerability_behavior"`
	Solution string `json:"solution"`
}

// runStages executes the four ordered analysis stages for one record:
// purpose, function, analysis, knowledge. Stages run strictly sequentially;
// stages 3 and 4 share one conversation so the synthesis sees the analysis.
// Any parse or validation failure is transient and fails the whole attempt.
func runStages(ctx context.Context, transport llm.Transport, record types.RawDiffRecord) (*types.VulnerabilityKnowledge, error) {
	prefix, err := renderPrefix(record)
	if err != nil {
		return nil, Fatal(err)
	}

	// Stage 1: purpose of the affected function.
	purposeOut, err := transport.Generate(ctx, []llm.Message{llm.User(prefix + purposeQuestion)})
	if err != nil {
		return nil, fmt.Errorf("purpose stage: %w", err)
	}
	purpose := llm.AfterPrefix(purposeOut, purposePrefix)
	if purpose == "" {
		return nil, fmt.Errorf("purpose stage: empty response")
	}

	// Stage 2: behavior summary of the snippet.
	functionOut, err := transport.Generate(ctx, []llm.Message{llm.User(prefix + functionQuestion)})
	if err != nil {
		return nil, fmt.Errorf("function stage: %w", err)
	}
	function := llm.AfterPrefix(functionOut, functionPrefix)
	if function == "" {
		return nil, fmt.Errorf("function stage: empty response")
	}

	// Stage 3: why the modification is necessary.
	conversation := []llm.Message{llm.User(analysisPrompt(prefix, record))}
	analysis, err := transport.Generate(ctx, conversation)
	if err != nil {
		return nil, fmt.Errorf("analysis stage: %w", err)
	}
	if strings.TrimSpace(analysis) == "" {
		return nil, fmt.Errorf("analysis stage: empty response")
	}

	// Stage 4: structured knowledge, continuing the stage 3 conversation.
	conversation = append(conversation, llm.Assistant(analysis), llm.User(knowledgeQuestion))
	knowledgeOut, err := transport.Generate(ctx, conversation)
	if err != nil {
		return nil, fmt.Errorf("knowledge stage: %w", err)
	}

	raw, err := llm.ExtractJSON(knowledgeOut)
	if err != nil {
		return nil, fmt.Errorf("knowledge stage: %w", err)
	}
	var doc knowledgeDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("knowledge stage: parsing response: %w", err)
	}

	solution := doc.Solution
	if solution == "" {
		solution = doc.Behavior.Solution
	}

	knowledge := &types.VulnerabilityKnowledge{
		ID:            record.ID,
		CVEID:         record.CVEID,
		Behavior:      doc.Behavior.VulnerabilityBehavior,
		Solution:      solution,
		Purpose:       purpose,
		Function:      function,
		Analysis:      strings.TrimSpace(analysis),
		CodeBefore:    record.CodeBefore,
		CodeAfter:     record.CodeAfter,
		ModifiedLines: record.ModifiedLines,
	}
	if record.ID == "" {
		knowledge.ID = types.RecordID(record.Identifier())
	}
	knowledge.Flatten()

	if err := knowledge.Validate(); err != nil {
		return nil, fmt.Errorf("knowledge stage: %w", err)
	}
	return knowledge, nil
}
