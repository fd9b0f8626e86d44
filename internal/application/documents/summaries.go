package documents

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// summarizeFiles describes up to the configured number of parsed files,
// calling the model with bounded parallelism. Replies that are not valid
// JSON fall back to a summary derived from the outline.
func (n *Nodes) summarizeFiles(ctx context.Context, in map[string]any) (map[string]any, error) {
	var parsed []ParsedFile
	if _, err := decodeInput(in, KeyParsedFiles, &parsed); err != nil {
		return nil, domain.NewInvalidInputError(NodeFileSummarizer, err)
	}
	if len(parsed) == 0 {
		return nil, domain.NewInvalidInputError(NodeFileSummarizer, errors.New("no parsed files to summarize"))
	}
	if n.summaryLimit > 0 && len(parsed) > n.summaryLimit {
		n.logger.Debug("limiting summarized files",
			zap.Int("files", len(parsed)),
			zap.Int("limit", n.summaryLimit))
		parsed = parsed[:n.summaryLimit]
	}

	summaries := make([]FileSummary, len(parsed))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for i := range parsed {
		i := i
		g.Go(func() error {
			s, err := n.summarizeFile(gctx, parsed[i])
			if err != nil {
				return err
			}
			summaries[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fallbacks := 0
	for _, s := range summaries {
		if s.GenerationMethod == "fallback" {
			fallbacks++
		}
	}
	n.logger.Info("files summarized",
		zap.Int("count", len(summaries)),
		zap.Int("fallbacks", fallbacks))

	return outputs(KeyFileSummaries, summaries)
}

func (n *Nodes) summarizeFile(ctx context.Context, file ParsedFile) (FileSummary, error) {
	res, err := n.invoker.Invoke(ctx, &ports.InvokeRequest{
		Tool:   ToolFileSummary,
		System: fileSummarySystemPrompt,
		Prompt: fileSummaryPrompt(file),
		Args:   map[string]any{"file_path": file.FilePath},
	})
	if err != nil {
		return FileSummary{}, fmt.Errorf("failed to summarize %s: %w", file.FilePath, err)
	}

	summary := FileSummary{
		FilePath:         file.FilePath,
		Language:         file.Language,
		GenerationMethod: "llm",
	}
	if err := json.Unmarshal([]byte(extractJSON(res.Content)), &summary.Summary); err != nil || summary.Summary.Purpose == "" {
		summary = fallbackSummary(file)
	}
	summary.Summary.FunctionsCount = len(file.Functions)
	summary.Summary.ClassesCount = len(file.Classes)
	summary.Summary.ImportsCount = len(file.Imports)
	summary.Summary.LOC = file.LOC
	return summary, nil
}

// fallbackSummary derives a summary from the file name and outline
func fallbackSummary(file ParsedFile) FileSummary {
	name := strings.ToLower(strings.TrimSuffix(path.Base(file.FilePath), path.Ext(file.FilePath)))

	purpose, role := fmt.Sprintf("%s source module", file.Language), "core"
	for _, p := range []struct{ match, purpose, role string }{
		{"main", "application entry point", "core"},
		{"model", "data model definitions", "model"},
		{"schema", "data structure definitions", "model"},
		{"test", "test cases", "test"},
		{"router", "API routing", "router"},
		{"handler", "request handling", "controller"},
		{"service", "business logic", "service"},
		{"config", "configuration", "config"},
	} {
		if strings.Contains(name, p.match) {
			purpose, role = p.purpose, p.role
			break
		}
	}

	return FileSummary{
		FilePath: file.FilePath,
		Language: file.Language,
		Summary: SummaryBody{
			Purpose: purpose,
			Role:    role,
			KeyFeatures: []string{
				fmt.Sprintf("%d functions", len(file.Functions)),
				fmt.Sprintf("%d types", len(file.Classes)),
			},
		},
		GenerationMethod: "fallback",
	}
}

// generateRepositoryDocument writes the overview, architecture and module
// sections of a new document in parallel
func (n *Nodes) generateRepositoryDocument(ctx context.Context, in map[string]any) (map[string]any, error) {
	var summaries []FileSummary
	if _, err := decodeInput(in, KeyFileSummaries, &summaries); err != nil {
		return nil, domain.NewInvalidInputError(NodeFullDocumentGenerator, err)
	}
	if len(summaries) == 0 {
		return nil, domain.NewInvalidInputError(NodeFullDocumentGenerator, errors.New("file summaries are empty"))
	}
	var structure RepositoryStructure
	if _, err := decodeInput(in, KeyRepositoryStructure, &structure); err != nil {
		return nil, domain.NewInvalidInputError(NodeFullDocumentGenerator, err)
	}

	repo := stringInput(in, KeyRepositoryName)
	title := stringInput(in, KeyDocumentTitle)
	if title == "" {
		title = fmt.Sprintf("%s - Project Documentation", repo)
	}

	sections := []struct {
		key, heading, tool, prompt string
	}{
		{overviewSection, "Project Overview", ToolDocOverview, overviewPrompt(repo, summaries)},
		{architectureSection, "Architecture", ToolDocArchitecture, architecturePrompt(summaries)},
		{modulesSection, "Key Modules", ToolDocModules, modulesPrompt(summaries)},
	}

	bodies := make([]string, len(sections))
	system := documentSystemPrompt()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(n.concurrency, len(sections)))
	for i, s := range sections {
		i, s := i, s
		g.Go(func() error {
			res, err := n.invoker.Invoke(gctx, &ports.InvokeRequest{
				Tool:   s.tool,
				System: system,
				Prompt: s.prompt,
			})
			if err != nil {
				return fmt.Errorf("failed to generate %s section: %w", s.key, err)
			}
			bodies[i] = strings.TrimSpace(res.Content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	for i, s := range sections {
		fmt.Fprintf(&b, "## %s\n%s\n\n", s.heading, bodies[i])
	}

	summary := fmt.Sprintf("%s documentation covering %d files in %d languages",
		repo, len(summaries), len(structure.Languages))

	return outputs(
		KeyDocumentContent, b.String(),
		KeyDocumentSummary, summary,
	)
}
