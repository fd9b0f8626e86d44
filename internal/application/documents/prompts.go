package documents

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// maxPromptFiles bounds the file entries embedded in section prompts
const maxPromptFiles = 40

const baseSystemRole = `Role: technical writer and architect for large code bases.
Output: Markdown only, no emoji.
Rules:
- Use the supplied JSON data (p=path, l=language, pu=purpose, fn=functions, cl=classes, r=role) and reason from it.
- Derive the nature of the project from paths, languages, purposes and counts.
- Infer dependencies from file paths and roles.
- Say "insufficient information" only when something is genuinely unclear.
- Never change the required headings or their order.
- Prefer technical accuracy over marketing language.
`

const documentRules = `Document rules:
- Mermaid: a single graph, TD or LR, at most 12 nodes and 20 edges, no self loops.
- Lists use "- " bullets and respect item limits.
- Recommendations start with a concrete verb.
- No trailing commentary after the document.
`

// documentSystemPrompt is shared by the full repository sections
func documentSystemPrompt() string {
	return baseSystemRole +
		"Goal: concise, structured output. Pure Markdown without JSON metadata.\n" +
		documentRules
}

type compactFile struct {
	Path      string `json:"p"`
	Language  string `json:"l"`
	Purpose   string `json:"pu"`
	Functions int    `json:"fn"`
	Classes   int    `json:"cl"`
	Role      string `json:"r"`
}

// compactFiles renders file summaries as the abbreviated JSON used by the
// section prompts, sorted by path
func compactFiles(summaries []FileSummary) string {
	sorted := append([]FileSummary(nil), summaries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FilePath < sorted[j].FilePath
	})
	if len(sorted) > maxPromptFiles {
		sorted = sorted[:maxPromptFiles]
	}

	files := make([]compactFile, 0, len(sorted))
	for _, s := range sorted {
		files = append(files, compactFile{
			Path:      s.FilePath,
			Language:  s.Language,
			Purpose:   truncate(s.Summary.Purpose, 90),
			Functions: s.Summary.FunctionsCount,
			Classes:   s.Summary.ClassesCount,
			Role:      s.Summary.Role,
		})
	}
	data, err := json.Marshal(files)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func overviewPrompt(repo string, summaries []FileSummary) string {
	return fmt.Sprintf(`[OVERVIEW] Project: %s
Fixed template:
# Project Overview
## 1. Purpose
## 2. Main Features
## 3. Technology Stack
## 4. Architecture Overview
## 5. Strengths
Requirements:
- Infer the nature of the project from path patterns such as /api/, /model/, /service/.
- Judge size and complexity from languages and function/class counts.
- Derive the main features from the purposes.
- Group the technology stack by layer.
Data:%s
`, repo, compactFiles(summaries))
}

func architecturePrompt(summaries []FileSummary) string {
	return fmt.Sprintf(`[ARCHITECTURE]
Fixed template:
# System Architecture
## 1. Layers
## 2. Main Components
## 3. Data and Control Flow
## 4. Mermaid Diagram
## 5. Design Considerations
Guidelines:
- Identify layers from path patterns such as /api/, /service/, /model/, /config/, /utils/.
- Relate components through their roles and purposes.
- Build diagram nodes from real files or directories.
Data:%s
`, compactFiles(summaries))
}

func modulesPrompt(summaries []FileSummary) string {
	return fmt.Sprintf(`[MODULES]
Fixed template:
# Key Modules
(one block per module)
### [module name]
- Purpose:
- Key features: (2 to 6 bullets)
- Dependencies:
- Technical traits:
- Improvements: (1 to 3, starting with a verb)
Guidelines:
- Identify module boundaries from directories and file groups.
- Rank modules by function and class counts.
Data:%s
`, compactFiles(summaries))
}

const changeAnalysisSystemPrompt = `You identify which documentation sections a code change affects.
Reply with JSON only, using this schema:
{
  "summary": ["one or two sentence summary"],
  "reasons": ["why the change was made"],
  "impact": ["affected modules or layers"],
  "details": ["libraries, patterns and other technical details"],
  "section_targets": ["overview|architecture|modules|changelog"]
}
Rules:
- No text outside the JSON.
- section_targets uses lower case keys only.
- Judge from the diff, avoid speculation.
`

func changeAnalysisPrompt(change CodeChange, changedFiles []string, diff string) string {
	return fmt.Sprintf(`Commit message: %s

Changed files:
%s

Git diff:
%s

Analyse and summarise the change above.`, change.CommitMessage, strings.Join(changedFiles, ", "), diff)
}

const documentUpdateSystemPrompt = `You are a technical documentation editor. Do not regenerate the document.
Create or extend a "## Changelog" section at the end of the document with this change.
Leave the existing body untouched except where the change requires it.`

func documentUpdatePrompt(existing, analysis string) string {
	return fmt.Sprintf("Existing document:\n```markdown\n%s\n```\n\nChange analysis:\n%s\n\nReturn the full updated document.", existing, analysis)
}

const sectionUpdateSystemPrompt = `You maintain one section of a project document.
Describe only the edits this change requires, using these markers:
[ADD] followed by new text to append
[UPDATE: <existing text>] followed by its replacement
[NO_CHANGE] when the section is unaffected
No other commentary.`

func sectionUpdatePrompt(section, current, analysis, commitMessage string) string {
	if section == changelogSection {
		return fmt.Sprintf("Section: changelog\nCommit message: %s\n\nChange analysis:\n%s\n\nWrite one changelog bullet for this change starting with \"- \".", commitMessage, analysis)
	}
	return fmt.Sprintf("Section: %s\nCommit message: %s\n\nCurrent section text:\n%s\n\nChange analysis:\n%s", section, commitMessage, current, analysis)
}

func documentSummaryPrompt(content string) string {
	return fmt.Sprintf("Summarise the following document in three to five lines:\n\n%s\n\nSummary:", content)
}

const fileSummarySystemPrompt = `You analyse source files of large repositories.
Reply with JSON only, using this schema:
{
  "purpose": "",
  "role": "controller | service | model | util | view | router | config | test | script | core | unknown",
  "key_features": [],
  "complexity_assessment": "low | medium | high",
  "maintainability": ""
}
Use "unknown" or an empty list for anything you cannot tell.`

func fileSummaryPrompt(file ParsedFile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\nLanguage: %s\nLines: %d\nComplexity: %d\n", file.FilePath, file.Language, file.LOC, file.ComplexityScore)
	if len(file.Functions) > 0 {
		fmt.Fprintf(&b, "Functions: %s\n", strings.Join(limitStrings(file.Functions, 20), ", "))
	}
	if len(file.Classes) > 0 {
		fmt.Fprintf(&b, "Types: %s\n", strings.Join(limitStrings(file.Classes, 20), ", "))
	}
	if len(file.Imports) > 0 {
		fmt.Fprintf(&b, "Imports: %s\n", strings.Join(limitStrings(file.Imports, 20), ", "))
	}
	if file.Preview != "" {
		fmt.Fprintf(&b, "\nPreview:\n%s\n", file.Preview)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func limitStrings(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
