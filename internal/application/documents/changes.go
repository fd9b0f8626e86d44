package documents

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	overviewSection     = "overview"
	architectureSection = "architecture"
	modulesSection      = "modules"
	changelogSection    = "changelog"
)

var allowedSections = map[string]bool{
	overviewSection:     true,
	architectureSection: true,
	modulesSection:      true,
	changelogSection:    true,
}

// sectionAliases maps heading words to section keys
var sectionAliases = map[string][]string{
	overviewSection:     {"overview", "introduction", "purpose"},
	architectureSection: {"architecture", "design"},
	modulesSection:      {"module", "component"},
	changelogSection:    {"changelog", "change log", "history"},
}

var (
	sectionTargetsPattern = regexp.MustCompile(`(?im)section_targets:\s*([a-z,\s]+?)(?:\n|$)`)
	headingPattern        = regexp.MustCompile(`(?m)^##\s+(.+)$`)
	nonWordPattern        = regexp.MustCompile(`[^a-z0-9]+`)
	updateMarkerPattern   = regexp.MustCompile(`(?s)\[UPDATE:\s*([^\]]+)\]\s*([^\[]*)`)
	addMarkerPattern      = regexp.MustCompile(`(?s)\[ADD\]\s*([^\[]*)`)
)

type changeAnalysis struct {
	Summary        []string `json:"summary"`
	Reasons        []string `json:"reasons"`
	Impact         []string `json:"impact"`
	Details        []string `json:"details"`
	SectionTargets []string `json:"section_targets"`
}

// analyzeChange asks the model which document sections the commit affects
func (n *Nodes) analyzeChange(ctx context.Context, in map[string]any) (map[string]any, error) {
	var change CodeChange
	if _, err := decodeInput(in, KeyCodeChange, &change); err != nil {
		return nil, domain.NewInvalidInputError(NodeChangeAnalyzer, err)
	}
	var changed []string
	if _, err := decodeInput(in, KeyChangedFiles, &changed); err != nil {
		return nil, domain.NewInvalidInputError(NodeChangeAnalyzer, err)
	}
	diff := stringInput(in, KeyDiffContent)

	res, err := n.invoker.Invoke(ctx, &ports.InvokeRequest{
		Tool:   ToolChangeAnalysis,
		System: changeAnalysisSystemPrompt,
		Prompt: changeAnalysisPrompt(change, changed, diff),
	})
	if err != nil {
		return nil, err
	}

	analysis, targets, structured := parseChangeAnalysis(res.Content)
	if !structured && len(targets) == 0 {
		targets = inferTargetSections(changed)
	}

	n.logger.Debug("change analysed",
		zap.String("commit_sha", change.CommitSHA),
		zap.Strings("target_sections", targets))

	return outputs(
		KeyAnalysisResult, analysis,
		KeyTargetDocSections, targets,
	)
}

// parseChangeAnalysis reads the structured reply of the model, falling back
// to the raw text and a "section_targets:" line. structured reports whether
// the reply was valid JSON.
func parseChangeAnalysis(text string) (analysis string, targets []string, structured bool) {
	var parsed changeAnalysis
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err == nil {
		var parts []string
		for _, group := range []struct {
			name  string
			items []string
		}{
			{"summary", parsed.Summary},
			{"reasons", parsed.Reasons},
			{"impact", parsed.Impact},
			{"details", parsed.Details},
		} {
			if len(group.items) > 0 {
				parts = append(parts, fmt.Sprintf("## %s\n- %s", group.name, strings.Join(group.items, "\n- ")))
			}
		}
		if len(parts) > 0 || len(parsed.SectionTargets) > 0 {
			return strings.Join(parts, "\n\n"), filterSections(parsed.SectionTargets), true
		}
	}

	m := sectionTargetsPattern.FindStringSubmatch(text)
	if m == nil {
		return text, nil, false
	}
	return text, filterSections(strings.Split(m[1], ",")), false
}

func filterSections(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if allowedSections[key] && !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

// inferTargetSections guesses affected sections from file names. The
// changelog is always included.
func inferTargetSections(files []string) []string {
	targets := map[string]bool{changelogSection: true}
	for _, f := range files {
		lf := strings.ToLower(f)
		if containsAny(lf, "main", "app", "config") {
			targets[overviewSection] = true
		}
		if containsAny(lf, "router", "endpoint", "controller", "handler") {
			targets[architectureSection] = true
			targets[modulesSection] = true
		}
		if containsAny(lf, "model", "schema", "entity", "service") {
			targets[modulesSection] = true
		}
	}
	out := make([]string, 0, len(targets))
	for k := range targets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// generateUpdate rewrites the existing document for the analysed change
func (n *Nodes) generateUpdate(ctx context.Context, in map[string]any) (map[string]any, error) {
	var doc ExistingDocument
	if _, err := decodeInput(in, KeyExistingDocument, &doc); err != nil {
		return nil, domain.NewInvalidInputError(NodeDocumentGenerator, err)
	}
	var change CodeChange
	if _, err := decodeInput(in, KeyCodeChange, &change); err != nil {
		return nil, domain.NewInvalidInputError(NodeDocumentGenerator, err)
	}
	var targets []string
	if _, err := decodeInput(in, KeyTargetDocSections, &targets); err != nil {
		return nil, domain.NewInvalidInputError(NodeDocumentGenerator, err)
	}
	analysis := stringInput(in, KeyAnalysisResult)

	var content string
	var err error
	if len(targets) > 0 {
		content, err = n.updateSections(ctx, doc.Content, targets, analysis, change.CommitMessage)
	} else {
		content, err = n.updateWholeDocument(ctx, doc.Content, analysis)
	}
	if err != nil {
		return nil, err
	}

	summary, err := n.summarize(ctx, content)
	if err != nil {
		return nil, err
	}

	return outputs(
		KeyDocumentContent, content,
		KeyDocumentSummary, summary,
	)
}

func (n *Nodes) updateWholeDocument(ctx context.Context, existing, analysis string) (string, error) {
	res, err := n.invoker.Invoke(ctx, &ports.InvokeRequest{
		Tool:   ToolDocumentUpdate,
		System: documentUpdateSystemPrompt,
		Prompt: documentUpdatePrompt(existing, analysis),
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(res.Content) == "" {
		return "", domain.NewInvalidOutputError(ToolDocumentUpdate, errors.New("empty document"))
	}
	return res.Content, nil
}

// updateSections asks for edits of each targeted section in parallel and
// merges them into the existing document
func (n *Nodes) updateSections(ctx context.Context, existing string, targets []string, analysis, commitMessage string) (string, error) {
	doc := parseSections(existing)
	for _, t := range targets {
		if t == changelogSection && !doc.has(t) {
			doc.add(t, "Changelog", "")
		}
	}

	var keys []string
	for _, t := range targets {
		if doc.has(t) {
			keys = append(keys, t)
		}
	}

	updated := make([]string, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			current := doc.sections[key]
			res, err := n.invoker.Invoke(gctx, &ports.InvokeRequest{
				Tool:   ToolSectionUpdate,
				System: sectionUpdateSystemPrompt,
				Prompt: sectionUpdatePrompt(key, current, analysis, commitMessage),
			})
			if err != nil {
				return err
			}
			if key == changelogSection {
				updated[i] = mergeChangelog(current, res.Content)
			} else {
				updated[i] = mergeSectionChanges(current, res.Content)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	for i, key := range keys {
		doc.sections[key] = updated[i]
	}
	return doc.render(), nil
}

func (n *Nodes) summarize(ctx context.Context, content string) (string, error) {
	res, err := n.invoker.Invoke(ctx, &ports.InvokeRequest{
		Tool:   ToolDocumentSummary,
		Prompt: documentSummaryPrompt(content),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Content), nil
}

// sectionedDocument is a Markdown document split at its "## " headings
type sectionedDocument struct {
	preamble string
	order    []string
	headings map[string]string
	sections map[string]string
}

func parseSections(content string) *sectionedDocument {
	doc := &sectionedDocument{
		headings: make(map[string]string),
		sections: make(map[string]string),
	}
	matches := headingPattern.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		doc.preamble = strings.TrimSpace(content)
		return doc
	}

	doc.preamble = strings.TrimSpace(content[:matches[0][0]])
	for i, m := range matches {
		heading := strings.TrimSpace(content[m[2]:m[3]])
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		key := sectionKey(heading)
		unique := key
		for suffix := 2; doc.has(unique); suffix++ {
			unique = fmt.Sprintf("%s_%d", key, suffix)
		}
		doc.add(unique, heading, strings.TrimSpace(content[m[1]:end]))
	}
	return doc
}

func (d *sectionedDocument) has(key string) bool {
	_, ok := d.sections[key]
	return ok
}

func (d *sectionedDocument) add(key, heading, body string) {
	d.order = append(d.order, key)
	d.headings[key] = heading
	d.sections[key] = body
}

func (d *sectionedDocument) render() string {
	var parts []string
	if d.preamble != "" {
		parts = append(parts, d.preamble)
	}
	for _, key := range d.order {
		parts = append(parts, fmt.Sprintf("## %s\n%s", d.headings[key], strings.TrimSpace(d.sections[key])))
	}
	return strings.Join(parts, "\n\n") + "\n"
}

func sectionKey(heading string) string {
	lower := strings.ToLower(heading)
	for _, key := range []string{overviewSection, architectureSection, modulesSection, changelogSection} {
		if containsAny(lower, sectionAliases[key]...) {
			return key
		}
	}
	key := strings.Trim(nonWordPattern.ReplaceAllString(lower, "_"), "_")
	return truncate(key, 40)
}

// mergeChangelog appends a changelog entry unless the model reported no change
func mergeChangelog(current, entry string) string {
	entry = strings.TrimSpace(entry)
	if entry == "" || strings.Contains(entry, "[NO_CHANGE]") {
		return current
	}
	if strings.TrimSpace(current) == "" {
		return entry
	}
	return strings.TrimRight(current, "\n ") + "\n" + entry
}

// mergeSectionChanges applies [UPDATE: ...] and [ADD] markers to a section
func mergeSectionChanges(current, changes string) string {
	if strings.TrimSpace(changes) == "" || strings.Contains(changes, "[NO_CHANGE]") {
		return current
	}
	if !strings.Contains(changes, "[UPDATE:") && !strings.Contains(changes, "[ADD]") {
		if strings.TrimSpace(current) == "" {
			return strings.TrimSpace(changes)
		}
		return strings.TrimSpace(current) + "\n\n" + strings.TrimSpace(changes)
	}

	result := current
	for _, m := range updateMarkerPattern.FindAllStringSubmatch(changes, -1) {
		snippet := strings.TrimSpace(m[1])
		replacement := strings.TrimSpace(m[2])
		if replacement == "" {
			continue
		}
		result = replaceSnippet(result, snippet, replacement)
	}
	for _, m := range addMarkerPattern.FindAllStringSubmatch(changes, -1) {
		if text := strings.TrimSpace(m[1]); text != "" {
			if strings.TrimSpace(result) == "" {
				result = text
			} else {
				result = strings.TrimRight(result, "\n ") + "\n\n" + text
			}
		}
	}
	return strings.TrimSpace(result)
}

// replaceSnippet replaces the first line, then the first paragraph, that
// contains snippet. Replacements that match nothing are appended.
func replaceSnippet(text, snippet, replacement string) string {
	key := truncate(snippet, 30)
	if key == "" {
		return text
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.Contains(line, key) {
			lines[i] = replacement
			return strings.Join(lines, "\n")
		}
	}

	paragraphs := strings.Split(text, "\n\n")
	for i, p := range paragraphs {
		if strings.Contains(p, key) {
			paragraphs[i] = replacement
			return strings.Join(paragraphs, "\n\n")
		}
	}

	return strings.TrimRight(text, "\n ") + "\n\n" + replacement
}

// extractJSON returns the outermost JSON object in text, tolerating code
// fences and surrounding prose
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
