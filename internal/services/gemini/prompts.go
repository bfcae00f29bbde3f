package gemini

import (
	"fmt"
	"strings"

	"codecast/internal/services/ai"
)

const scriptInstruction = `You write narration scripts for spoken code walkthroughs.
Return JSON only: {"title": "...", "markdown": "..."}.
Write prose meant to be heard. Walk the code in execution order. Never
embed the raw source in the narration.`

const flowchartInstruction = `You extract control flow from source code.
Return JSON only:
{"nodes": [{"id": "...", "label": "...", "kind": "start|end|process|decision"}],
 "edges": [{"from": "...", "to": "...", "label": "..."}]}
Use exactly one start node and at least one end node. Label decision
edges with the branch outcome.`

const examplesInstruction = `You translate code idiomatically between languages.
Return JSON only: {"examples": [{"language": "...", "code": "...", "notes": "..."}]}.
Preserve behavior exactly; adapt idioms to the target language.`

const answerInstruction = `You answer follow-up questions about code that was already explained.
Return JSON only: {"answer": "..."}.
Ground every claim in the provided code and transcript.`

func scriptPrompt(req ai.ScriptRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\nNarration language: %s\n", req.SourceLanguage, req.NarrationLanguage)
	fmt.Fprintf(&b, "Lines: %d, functions: %d, complexity: %s\n",
		req.Analysis.LineCount, req.Analysis.FunctionCount, req.Analysis.Complexity)
	if req.SummaryMode {
		b.WriteString("Mode: summary of purpose, structure, and key functions.\n")
	} else {
		b.WriteString("Mode: full walkthrough in execution order.\n")
	}
	b.WriteString("\nCode:\n")
	b.WriteString(req.Code)
	return b.String()
}

func flowchartPrompt(req ai.FlowchartRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\nBranches: %d, loops: %d\n\nCode:\n%s",
		req.SourceLanguage, req.Analysis.BranchCount, req.Analysis.LoopCount, req.Code)
	return b.String()
}

func examplesPrompt(req ai.ExamplesRequest) string {
	return fmt.Sprintf("Source language: %s\nTarget language: %s\n\nCode:\n%s",
		req.SourceLanguage, req.TargetLanguage, req.Code)
}

func answerPrompt(req ai.AnswerRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n\nCode:\n%s\n", req.Language, req.Code)
	if strings.TrimSpace(req.Transcript) != "" {
		fmt.Fprintf(&b, "\nExplanation transcript:\n%s\n", req.Transcript)
	}
	for _, turn := range req.History {
		fmt.Fprintf(&b, "\nEarlier question: %s\nEarlier answer: %s\n", turn.Question, turn.Answer)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", req.Question)
	return b.String()
}
