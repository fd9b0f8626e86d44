package documents

import (
	"time"

	"github.com/aescanero/docgen/pkg/domain"
	"github.com/aescanero/docgen/pkg/ports"
	"go.uber.org/zap"
)

// WorkflowName is the registered name of the document generation workflow
const WorkflowName = "document_generation"

// Node IDs
const (
	NodeDataLoader            = "data_loader"
	NodeDocumentDecider       = "document_decider"
	NodeChangeAnalyzer        = "change_analyzer"
	NodeDocumentGenerator     = "document_generator"
	NodeRepositoryAnalyzer    = "repository_analyzer"
	NodeFileParser            = "file_parser"
	NodeFileSummarizer        = "file_summarizer"
	NodeFullDocumentGenerator = "full_repository_document_generator"
	NodeDocumentSaver         = "document_saver"
)

// State keys
const (
	KeyRepositoryName      = "repository_name"
	KeyCommitSHA           = "commit_sha"
	KeyCommitMessage       = "commit_message"
	KeyAuthor              = "author"
	KeyFileChanges         = "file_changes"
	KeyFiles               = "files"
	KeyExistingDocument    = "existing_document"
	KeyCodeChange          = "code_change"
	KeyDiffContent         = "diff_content"
	KeyChangedFiles        = "changed_files"
	KeyShouldUpdate        = "should_update"
	KeyNeedsFullAnalysis   = "needs_full_analysis"
	KeyDocumentTitle       = "document_title"
	KeyAnalysisResult      = "analysis_result"
	KeyTargetDocSections   = "target_doc_sections"
	KeyCodeFiles           = "code_files"
	KeyRepositoryStructure = "repository_structure"
	KeyParsedFiles         = "parsed_files"
	KeyFileSummaries       = "file_summaries"
	KeyDocumentContent     = "document_content"
	KeyDocumentSummary     = "document_summary"
	KeyAction              = "action"
	KeyDocumentID          = "document_id"
	KeyDocumentStatus      = "document_status"
	KeyDocumentType        = "document_type"
)

// Invoker tool names
const (
	ToolChangeAnalysis  = "change_analysis"
	ToolSectionUpdate   = "section_update"
	ToolDocumentUpdate  = "document_update"
	ToolDocumentSummary = "document_summary"
	ToolFileSummary     = "file_summary"
	ToolDocOverview     = "doc_overview"
	ToolDocArchitecture = "doc_architecture"
	ToolDocModules      = "doc_modules"
)

// Config holds document workflow configuration
type Config struct {
	// SummaryLimit caps the files summarized for a new document; zero
	// removes the cap
	SummaryLimit int
	// Concurrency bounds parallel model calls inside a single node
	Concurrency int
	// LLMPolicy applies to nodes that call the model. Local nodes use the
	// registry defaults.
	LLMPolicy domain.NodePolicy
}

// DefaultConfig returns the default workflow configuration
func DefaultConfig() Config {
	return Config{
		SummaryLimit: 30,
		Concurrency:  4,
		LLMPolicy: domain.NodePolicy{
			Timeout:     5 * time.Minute,
			MaxRetries:  3,
			BackoffBase: 2 * time.Second,
			MaxBackoff:  30 * time.Second,
		},
	}
}

// Nodes implements the node functions of the document workflow
type Nodes struct {
	invoker      ports.Invoker
	docs         ports.DocumentStore
	summaryLimit int
	concurrency  int
	logger       *zap.Logger
}

// NewNodes creates the document workflow nodes
func NewNodes(invoker ports.Invoker, docs ports.DocumentStore, cfg Config, logger *zap.Logger) *Nodes {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Nodes{
		invoker:      invoker,
		docs:         docs,
		summaryLimit: cfg.SummaryLimit,
		concurrency:  concurrency,
		logger:       logger,
	}
}

func shouldUpdate(in map[string]any) bool {
	return boolInput(in, KeyShouldUpdate)
}

func needsFullAnalysis(in map[string]any) bool {
	return !boolInput(in, KeyShouldUpdate)
}

// NewWorkflow returns the document generation workflow definition. A run
// either updates the existing document from the commit diff or, when there
// is none, documents the whole repository snapshot. Documents are read from
// and written to docs.
func NewWorkflow(invoker ports.Invoker, docs ports.DocumentStore, cfg Config, logger *zap.Logger) *domain.WorkflowDefinition {
	n := NewNodes(invoker, docs, cfg, logger)
	llm := cfg.LLMPolicy

	return &domain.WorkflowDefinition{
		Name:        WorkflowName,
		Description: "Generates or updates repository documentation from a commit",
		InitialKeys: []string{KeyRepositoryName, KeyCommitSHA},
		ArtifactKeys: []string{
			KeyDocumentTitle,
			KeyDocumentContent,
			KeyDocumentSummary,
			KeyAction,
		},
		Nodes: []domain.NodeSpec{
			{
				ID:             NodeDataLoader,
				Description:    "Normalises the commit and loads the current document of the repository",
				Inputs:         []string{KeyRepositoryName, KeyCommitSHA},
				OptionalInputs: []string{KeyCommitMessage, KeyAuthor, KeyFileChanges, KeyExistingDocument},
				Outputs:        []string{KeyCodeChange, KeyDiffContent, KeyChangedFiles, KeyExistingDocument},
				Run:            n.loadData,
			},
			{
				ID:             NodeDocumentDecider,
				Description:    "Chooses between updating the existing document and a full repository document",
				DependsOn:      []string{NodeDataLoader},
				Inputs:         []string{KeyRepositoryName},
				OptionalInputs: []string{KeyExistingDocument},
				Outputs:        []string{KeyShouldUpdate, KeyNeedsFullAnalysis, KeyDocumentTitle},
				Run:            n.decide,
			},
			{
				ID:          NodeChangeAnalyzer,
				Description: "Analyses the diff and picks the sections to update",
				DependsOn:   []string{NodeDocumentDecider},
				Inputs:      []string{KeyShouldUpdate, KeyCodeChange, KeyDiffContent, KeyChangedFiles},
				Outputs:     []string{KeyAnalysisResult, KeyTargetDocSections},
				Optional:    true,
				Condition:   shouldUpdate,
				Run:         n.analyzeChange,
				Policy:      llm,
			},
			{
				ID:          NodeDocumentGenerator,
				Description: "Updates the targeted sections of the existing document",
				DependsOn:   []string{NodeChangeAnalyzer},
				Inputs: []string{KeyShouldUpdate, KeyAnalysisResult, KeyTargetDocSections,
					KeyExistingDocument, KeyCodeChange, KeyDocumentTitle},
				Outputs:   []string{KeyDocumentContent, KeyDocumentSummary},
				Optional:  true,
				Condition: shouldUpdate,
				Run:       n.generateUpdate,
				Policy:    llm,
			},
			{
				ID:             NodeRepositoryAnalyzer,
				Description:    "Selects the code files of the repository snapshot",
				DependsOn:      []string{NodeDocumentDecider},
				Inputs:         []string{KeyShouldUpdate, KeyRepositoryName},
				OptionalInputs: []string{KeyFiles},
				Outputs:        []string{KeyCodeFiles, KeyRepositoryStructure},
				Optional:       true,
				Condition:      needsFullAnalysis,
				Run:            n.analyzeRepository,
			},
			{
				ID:          NodeFileParser,
				Description: "Extracts functions, types and imports of every code file",
				DependsOn:   []string{NodeRepositoryAnalyzer},
				Inputs:      []string{KeyShouldUpdate, KeyCodeFiles},
				Outputs:     []string{KeyParsedFiles},
				Optional:    true,
				Condition:   needsFullAnalysis,
				Run:         n.parseFiles,
			},
			{
				ID:          NodeFileSummarizer,
				Description: "Summarizes the most relevant files",
				DependsOn:   []string{NodeFileParser},
				Inputs:      []string{KeyShouldUpdate, KeyParsedFiles},
				Outputs:     []string{KeyFileSummaries},
				Optional:    true,
				Condition:   needsFullAnalysis,
				Run:         n.summarizeFiles,
				Policy:      llm,
			},
			{
				ID:          NodeFullDocumentGenerator,
				Description: "Writes the overview, architecture and module sections",
				DependsOn:   []string{NodeFileSummarizer},
				Inputs: []string{KeyShouldUpdate, KeyFileSummaries, KeyRepositoryStructure,
					KeyRepositoryName, KeyDocumentTitle},
				Outputs:   []string{KeyDocumentContent, KeyDocumentSummary},
				Optional:  true,
				Condition: needsFullAnalysis,
				Run:       n.generateRepositoryDocument,
				Policy:    llm,
			},
			{
				ID:             NodeDocumentSaver,
				Description:    "Creates or updates the document in the document store",
				DependsOn:      []string{NodeDocumentGenerator, NodeFullDocumentGenerator},
				Inputs:         []string{KeyDocumentContent, KeyDocumentTitle, KeyShouldUpdate, KeyCommitSHA, KeyRepositoryName},
				OptionalInputs: []string{KeyExistingDocument, KeyDocumentSummary, KeyAnalysisResult, KeyChangedFiles},
				Outputs:        []string{KeyAction, KeyDocumentID, KeyDocumentStatus, KeyDocumentType},
				Run:            n.save,
			},
		},
	}
}
