package documents

import (
	"context"
	"errors"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/aescanero/docgen/pkg/domain"
	"go.uber.org/zap"
)

// maxFileSize excludes generated or vendored blobs from analysis
const maxFileSize = 5 << 20

// previewLines bounds the code excerpt sent with each file summary request
const previewLines = 60

var codeExtensions = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".mjs":   "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".c":     "c",
	".h":     "c",
	".go":    "go",
	".rs":    "rust",
	".php":   "php",
	".rb":    "ruby",
	".cs":    "csharp",
	".kt":    "kotlin",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".xml":   "xml",
	".md":    "markdown",
	".rst":   "rst",
}

var ignoredPathParts = []string{
	"__pycache__", ".git/", ".svn/", "node_modules/", ".vscode/", ".idea/",
	"venv/", "build/", "dist/", "target/", "vendor/", ".pytest_cache",
	".DS_Store",
}

// analyzeRepository selects the code files of the snapshot and collects
// repository statistics
func (n *Nodes) analyzeRepository(ctx context.Context, in map[string]any) (map[string]any, error) {
	var files []SourceFile
	if _, err := decodeInput(in, KeyFiles, &files); err != nil {
		return nil, domain.NewInvalidInputError(NodeRepositoryAnalyzer, err)
	}
	if len(files) == 0 {
		return nil, domain.NewInvalidInputError(NodeRepositoryAnalyzer, errors.New("no repository files supplied for full analysis"))
	}

	codeFiles, structure := analyzeFiles(files)
	if len(codeFiles) == 0 {
		return nil, domain.NewInvalidInputError(NodeRepositoryAnalyzer, errors.New("repository contains no code files"))
	}

	n.logger.Info("repository analysed",
		zap.String("repository", stringInput(in, KeyRepositoryName)),
		zap.Int("total_files", structure.TotalFiles),
		zap.Int("code_files", structure.CodeFiles),
		zap.Strings("languages", structure.Languages))

	return outputs(
		KeyCodeFiles, codeFiles,
		KeyRepositoryStructure, structure,
	)
}

func analyzeFiles(files []SourceFile) ([]CodeFile, RepositoryStructure) {
	var structure RepositoryStructure
	dirs := make(map[string]bool)
	langs := make(map[string]bool)
	var codeFiles []CodeFile

	for _, f := range files {
		p := strings.TrimPrefix(path.Clean(strings.ReplaceAll(f.Path, "\\", "/")), "/")
		structure.TotalFiles++
		if ignored(p) {
			continue
		}
		if dir := path.Dir(p); dir != "." {
			dirs[dir] = true
		}

		lang, ok := codeExtensions[strings.ToLower(path.Ext(p))]
		if !ok || len(f.Content) > maxFileSize {
			continue
		}

		cf := CodeFile{
			Path:     p,
			Language: lang,
			Size:     len(f.Content),
			IsTest:   isTestFile(p),
			IsConfig: isConfigFile(p),
			Content:  f.Content,
		}
		codeFiles = append(codeFiles, cf)
		langs[lang] = true
		structure.CodeFiles++
		switch {
		case cf.IsTest:
			structure.TestFiles++
		case lang == "markdown" || lang == "rst":
			structure.DocFiles++
		}
	}

	sort.SliceStable(codeFiles, func(i, j int) bool {
		return filePriority(codeFiles[i].Path) < filePriority(codeFiles[j].Path)
	})

	structure.Directories = sortedKeys(dirs)
	structure.Languages = sortedKeys(langs)
	return codeFiles, structure
}

func ignored(p string) bool {
	if strings.HasSuffix(p, ".pyc") {
		return true
	}
	candidate := "/" + p + "/"
	for _, part := range ignoredPathParts {
		if strings.Contains(candidate, "/"+part) {
			return true
		}
	}
	return false
}

func isTestFile(p string) bool {
	lp := strings.ToLower(p)
	return containsAny(lp, "test_", "_test.", "/test/", "/tests/", ".test.", ".spec.") ||
		strings.HasPrefix(lp, "test/") || strings.HasPrefix(lp, "tests/")
}

func isConfigFile(p string) bool {
	lp := strings.ToLower(p)
	return containsAny(lp, "config", "setting", "requirements.txt", "package.json", "dockerfile",
		"docker-compose", ".env", "makefile", "cmake", "go.mod", ".yml", ".yaml")
}

// filePriority orders entry points first and tests last
func filePriority(p string) int {
	base := strings.ToLower(path.Base(p))
	switch {
	case containsAny(base, "main.", "app.", "index.", "server.", "__init__.py"):
		return 1
	case isConfigFile(p) || strings.HasPrefix(base, "readme"):
		return 2
	case !isTestFile(p):
		return 3
	default:
		return 4
	}
}

// parseFiles extracts a static outline of every code file
func (n *Nodes) parseFiles(ctx context.Context, in map[string]any) (map[string]any, error) {
	var codeFiles []CodeFile
	if _, err := decodeInput(in, KeyCodeFiles, &codeFiles); err != nil {
		return nil, domain.NewInvalidInputError(NodeFileParser, err)
	}
	if len(codeFiles) == 0 {
		return nil, domain.NewInvalidInputError(NodeFileParser, errors.New("no code files to parse"))
	}

	parsed := make([]ParsedFile, 0, len(codeFiles))
	for _, cf := range codeFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		parsed = append(parsed, parseFile(cf))
	}

	n.logger.Debug("files parsed", zap.Int("count", len(parsed)))
	return outputs(KeyParsedFiles, parsed)
}

type outlinePatterns struct {
	functions *regexp.Regexp
	classes   *regexp.Regexp
	imports   *regexp.Regexp
}

var languagePatterns = map[string]outlinePatterns{
	"python": {
		functions: regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+(\w+)\s*\(`),
		classes:   regexp.MustCompile(`(?m)^class\s+(\w+)`),
		imports:   regexp.MustCompile(`(?m)^((?:from\s+\S+\s+)?import\s+.+)$`),
	},
	"javascript": {
		functions: regexp.MustCompile(`function\s+(\w+)|const\s+(\w+)\s*=\s*(?:async\s*)?\([^)]*\)\s*=>`),
		classes:   regexp.MustCompile(`class\s+(\w+)`),
		imports:   regexp.MustCompile(`import\s+(?:.+?\s+from\s+)?['"]([^'"]+)['"]`),
	},
	"java": {
		functions: regexp.MustCompile(`(?:public|private|protected)[^;{=]*?\s(\w+)\s*\([^)]*\)\s*(?:throws[^{]+)?\{`),
		classes:   regexp.MustCompile(`(?:class|interface|enum)\s+(\w+)`),
		imports:   regexp.MustCompile(`(?m)^import\s+([^;]+);`),
	},
	"go": {
		functions: regexp.MustCompile(`(?m)^func\s+(?:\([^)]*\)\s*)?(\w+)\s*[\[(]`),
		classes:   regexp.MustCompile(`(?m)^(?:type\s+|\t)(\w+)\s+(?:struct|interface)\s*\{`),
		imports:   regexp.MustCompile(`(?m)^(?:import\s+|\t)(?:\w+\s+)?"([^"]+)"`),
	},
}

func init() {
	languagePatterns["typescript"] = languagePatterns["javascript"]
	languagePatterns["kotlin"] = languagePatterns["java"]
}

func parseFile(cf CodeFile) ParsedFile {
	lines := strings.Split(cf.Content, "\n")
	if cf.Content == "" {
		lines = nil
	}

	pf := ParsedFile{
		FilePath: cf.Path,
		Language: cf.Language,
		LOC:      len(lines),
		Preview:  strings.Join(lines[:min(len(lines), previewLines)], "\n"),
	}

	patterns, ok := languagePatterns[cf.Language]
	if !ok {
		pf.ComplexityScore = 1
		return pf
	}

	pf.Functions = matchNames(patterns.functions, cf.Content)
	pf.Classes = matchNames(patterns.classes, cf.Content)
	pf.Imports = matchNames(patterns.imports, cf.Content)
	pf.ComplexityScore = len(pf.Functions) + 2*len(pf.Classes)
	return pf
}

// matchNames returns the first non-empty group of every match
func matchNames(re *regexp.Regexp, content string) []string {
	var names []string
	for _, m := range re.FindAllStringSubmatch(content, -1) {
		for _, g := range m[1:] {
			if g != "" {
				names = append(names, strings.TrimSpace(g))
				break
			}
		}
	}
	return names
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
