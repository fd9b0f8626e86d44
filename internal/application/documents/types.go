package documents

import (
	"fmt"

	"github.com/goccy/go-json"
)

// FileChange is one file touched by a commit
type FileChange struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// SourceFile is one file of the repository snapshot supplied with a run
type SourceFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ExistingDocument is the previously generated document of a repository
type ExistingDocument struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Summary string `json:"summary,omitempty"`
}

// CodeChange describes the commit a run documents
type CodeChange struct {
	Repository    string `json:"repository"`
	CommitSHA     string `json:"commit_sha"`
	CommitMessage string `json:"commit_message,omitempty"`
	Author        string `json:"author,omitempty"`
}

// CodeFile is a source file selected for full repository analysis
type CodeFile struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Size     int    `json:"size"`
	IsTest   bool   `json:"is_test"`
	IsConfig bool   `json:"is_config"`
	Content  string `json:"content,omitempty"`
}

// RepositoryStructure holds aggregate statistics of the snapshot
type RepositoryStructure struct {
	TotalFiles  int      `json:"total_files"`
	CodeFiles   int      `json:"code_files"`
	TestFiles   int      `json:"test_files"`
	DocFiles    int      `json:"doc_files"`
	Directories []string `json:"directories"`
	Languages   []string `json:"languages"`
}

// ParsedFile is the static outline of a code file
type ParsedFile struct {
	FilePath        string   `json:"file_path"`
	Language        string   `json:"language"`
	Functions       []string `json:"functions"`
	Classes         []string `json:"classes"`
	Imports         []string `json:"imports"`
	LOC             int      `json:"loc"`
	ComplexityScore int      `json:"complexity_score"`
	Preview         string   `json:"preview,omitempty"`
}

// FileSummary is the description of one file used by the document sections
type FileSummary struct {
	FilePath         string      `json:"file_path"`
	Language         string      `json:"language"`
	Summary          SummaryBody `json:"summary"`
	GenerationMethod string      `json:"generation_method"`
}

// SummaryBody is the analysed content of a file summary
type SummaryBody struct {
	Purpose         string   `json:"purpose"`
	Role            string   `json:"role"`
	KeyFeatures     []string `json:"key_features"`
	Complexity      string   `json:"complexity_assessment,omitempty"`
	Maintainability string   `json:"maintainability,omitempty"`
	FunctionsCount  int      `json:"functions_count"`
	ClassesCount    int      `json:"classes_count"`
	ImportsCount    int      `json:"imports_count"`
	LOC             int      `json:"loc"`
}

// decodeInput converts a resolved input value into a typed value. Inputs
// arrive either as values produced by nodes or decoded from JSON requests.
func decodeInput(inputs map[string]any, key string, dst any) (bool, error) {
	v, ok := inputs[key]
	if !ok || v == nil {
		return false, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return true, nil
}

// toValue converts a typed value into plain JSON values so that node
// outputs survive persistence unchanged.
func toValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}
	return out, nil
}

func stringInput(inputs map[string]any, key string) string {
	s, _ := inputs[key].(string)
	return s
}

func boolInput(inputs map[string]any, key string) bool {
	b, _ := inputs[key].(bool)
	return b
}

func outputs(kv ...any) (map[string]any, error) {
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key := kv[i].(string)
		v, err := toValue(kv[i+1])
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}
