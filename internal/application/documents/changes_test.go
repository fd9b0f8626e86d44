package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseChangeAnalysis(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		wantAnalysis   string
		wantTargets    []string
		wantStructured bool
	}{
		{
			name:           "json reply",
			text:           "```json\n{\"summary\":[\"a\",\"b\"],\"impact\":[\"api\"],\"section_targets\":[\"Modules\",\"bogus\",\"changelog\"]}\n```",
			wantAnalysis:   "## summary\n- a\n- b\n\n## impact\n- api",
			wantTargets:    []string{"modules", "changelog"},
			wantStructured: true,
		},
		{
			name:         "targets line",
			text:         "Changed the router.\nSECTION_TARGETS: architecture, modules\n",
			wantAnalysis: "Changed the router.\nSECTION_TARGETS: architecture, modules\n",
			wantTargets:  []string{"architecture", "modules"},
		},
		{
			name:         "plain text",
			text:         "Nothing structured here",
			wantAnalysis: "Nothing structured here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, targets, structured := parseChangeAnalysis(tt.text)
			assert.Equal(t, tt.wantAnalysis, analysis)
			assert.Equal(t, tt.wantTargets, targets)
			assert.Equal(t, tt.wantStructured, structured)
		})
	}
}

func TestInferTargetSections(t *testing.T) {
	assert.Equal(t, []string{"changelog"}, inferTargetSections(nil))
	assert.Equal(t,
		[]string{"architecture", "changelog", "modules", "overview"},
		inferTargetSections([]string{"cmd/app/main.go", "internal/handler/runs.go"}))
	assert.Equal(t,
		[]string{"changelog", "modules"},
		inferTargetSections([]string{"pkg/types/model.go"}))
}

func TestParseSections(t *testing.T) {
	content := "# Title\n\nIntro text.\n\n## Project Overview\nWhat it does.\n\n## Architecture\nLayers.\n\n## Notes\nOne.\n\n## Notes\nTwo.\n"

	doc := parseSections(content)
	assert.Equal(t, "# Title\n\nIntro text.", doc.preamble)
	assert.Equal(t, []string{"overview", "architecture", "notes", "notes_2"}, doc.order)
	assert.Equal(t, "What it does.", doc.sections["overview"])
	assert.Equal(t, "Notes", doc.headings["notes_2"])
	assert.Equal(t, "Two.", doc.sections["notes_2"])

	assert.Equal(t, content, doc.render())
}

func TestParseSectionsWithoutHeadings(t *testing.T) {
	doc := parseSections("just text\n")
	assert.Empty(t, doc.order)
	assert.Equal(t, "just text\n", doc.render())
}

func TestMergeSectionChanges(t *testing.T) {
	current := "First line.\nSecond line.\n\nAnother paragraph."

	tests := []struct {
		name    string
		changes string
		want    string
	}{
		{"no change", "[NO_CHANGE]", current},
		{"empty", "  ", current},
		{"plain text is appended", "New text.", current + "\n\nNew text."},
		{"add", "[ADD]\nAdded.", current + "\n\nAdded."},
		{"update line", "[UPDATE: Second line.]\nReplaced line.", "First line.\nReplaced line.\n\nAnother paragraph."},
		{"update without match is appended", "[UPDATE: missing]\nExtra.", current + "\n\nExtra."},
		{
			"update then add",
			"[UPDATE: First line.] Updated first.\n[ADD] Tail.",
			"Updated first.\nSecond line.\n\nAnother paragraph.\n\nTail.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mergeSectionChanges(current, tt.changes))
		})
	}

	assert.Equal(t, "Fresh.", mergeSectionChanges("", "[ADD] Fresh."))
}

func TestMergeChangelog(t *testing.T) {
	assert.Equal(t, "- one", mergeChangelog("", "- one"))
	assert.Equal(t, "- one\n- two", mergeChangelog("- one\n", "- two"))
	assert.Equal(t, "- one", mergeChangelog("- one", "[NO_CHANGE]"))
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":{"b":1}}`, extractJSON("reply: {\"a\":{\"b\":1}} done"))
	assert.Equal(t, "no json", extractJSON("no json"))
}
