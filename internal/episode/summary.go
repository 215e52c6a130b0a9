package episode

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// notesPreviewMaxRunes caps NotesPreview output.
const notesPreviewMaxRunes = 120

// notesParser is shared; goldmark parsers are safe for concurrent use.
var notesParser = goldmark.New().Parser()

// Summary is an episode without its full history and notes, used by list views.
type Summary struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id"`
	StartTime    int64         `json:"start_time"`
	EndTime      EndTime       `json:"end_time"`
	Active       bool          `json:"active"`
	Severity     int           `json:"severity"`
	Level        SeverityLevel `json:"level"`
	SampleCount  int           `json:"sample_count"`
	Triggers     []string      `json:"triggers,omitempty"`
	NotesPreview string        `json:"notes_preview,omitempty"`
	UpdatedAt    int64         `json:"updated_at"`
}

// ToSummary converts an Episode to a Summary.
func (e *Episode) ToSummary() Summary {
	s := Summary{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		StartTime:   e.StartTime,
		EndTime:     e.EndTime,
		Active:      e.Active(),
		Severity:    e.Severity,
		Level:       Level(e.Severity),
		SampleCount: len(e.SeverityHistory),
		Triggers:    e.Triggers,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.Notes != nil {
		s.NotesPreview = NotesPreview(*e.Notes)
	}
	return s
}

// NotesPreview renders markdown notes as a single line of plain text, dropping
// markup and truncating long notes.
func NotesPreview(notes string) string {
	src := []byte(notes)
	doc := notesParser.Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})

	out := whitespaceRegex.ReplaceAllString(strings.TrimSpace(b.String()), " ")
	if utf8.RuneCountInString(out) <= notesPreviewMaxRunes {
		return out
	}
	runes := []rune(out)
	return strings.TrimSpace(string(runes[:notesPreviewMaxRunes-3])) + "..."
}
