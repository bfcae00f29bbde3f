package openrouter

import (
	"fmt"
	"strings"

	"codecast/internal/services/ai"
)

const scriptSystemPrompt = `You are a narration writer for spoken code walkthroughs.
You produce a markdown script that a text-to-speech engine reads aloud.
Respond with JSON only, no code fences, using this shape:
{"title": "short title", "markdown": "## heading\n\nnarration paragraphs..."}
Rules:
- Write prose meant to be heard, not read. Expand symbols ("equals", "arrow").
- Walk through the code in execution order, naming functions as you reach them.
- Keep paragraphs short; each covers one idea.
- Never include the raw source code in the narration.`

const flowchartSystemPrompt = `You extract control flow from source code.
Respond with JSON only, no code fences, using this shape:
{"nodes": [{"id": "n1", "label": "...", "kind": "start|end|process|decision"}],
 "edges": [{"from": "n1", "to": "n2", "label": "optional"}]}
Rules:
- Exactly one node with kind "start" and at least one with kind "end".
- Decision nodes get one outgoing edge per branch, labeled with the condition outcome.
- Keep labels under 60 characters.`

const examplesSystemPrompt = `You translate code idiomatically between languages.
Respond with JSON only, no code fences, using this shape:
{"examples": [{"language": "...", "code": "...", "notes": "one sentence on idiom differences"}]}
Rules:
- Preserve behavior exactly; adapt idioms, naming, and error handling to the target language.
- Notes mention what changed and why, in one sentence.`

const answerSystemPrompt = `You answer follow-up questions about code that was already explained.
Respond with JSON only, no code fences, using this shape:
{"answer": "your answer"}
Rules:
- Ground every claim in the provided code and transcript.
- If the question cannot be answered from them, say so briefly.`

func scriptUserPrompt(req ai.ScriptRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", req.SourceLanguage)
	fmt.Fprintf(&b, "Narration language: %s\n", req.NarrationLanguage)
	fmt.Fprintf(&b, "Lines: %d, functions: %d, complexity: %s\n",
		req.Analysis.LineCount, req.Analysis.FunctionCount, req.Analysis.Complexity)
	if req.SummaryMode {
		b.WriteString("Mode: summary. Cover the file's purpose, structure, and key functions. Do not narrate line by line.\n")
	} else {
		b.WriteString("Mode: full walkthrough in execution order.\n")
	}
	b.WriteString("\nCode:\n")
	b.WriteString(req.Code)
	return b.String()
}

func flowchartUserPrompt(req ai.FlowchartRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", req.SourceLanguage)
	fmt.Fprintf(&b, "Branches: %d, loops: %d\n", req.Analysis.BranchCount, req.Analysis.LoopCount)
	b.WriteString("\nCode:\n")
	b.WriteString(req.Code)
	return b.String()
}

func examplesUserPrompt(req ai.ExamplesRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source language: %s\n", req.SourceLanguage)
	fmt.Fprintf(&b, "Target language: %s\n", req.TargetLanguage)
	b.WriteString("\nCode:\n")
	b.WriteString(req.Code)
	return b.String()
}

func answerUserPrompt(req ai.AnswerRequest) string {
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
