package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/learnpath/internal/model"
)

// Templates holds the built-in remedial prompt templates.
//
//go:embed templates/*.txt
var Templates embed.FS

// RemedialSystemPrompt sets the model's role for remedial lessons.
const RemedialSystemPrompt = `You are an expert instructional designer who writes short, encouraging remedial lessons. You always answer with a single JSON object and nothing else.`

const (
	maxConcepts    = 12
	maxConceptLen  = 64
	defaultMinutes = 3
)

var conceptsTagRegex = regexp.MustCompile(`(?i)</?\s*(concepts|system-instructions)\b[^>]*>`)

var variants = []model.Difficulty{
	model.DifficultyBeginner,
	model.DifficultyIntermediate,
	model.DifficultyAdvanced,
}

var (
	loadOnce          sync.Once
	loadErr           error
	remedialTemplates map[model.Difficulty]*template.Template
)

// RemedialData holds template data for remedial prompts.
type RemedialData struct {
	Concepts string
	Minutes  int
}

// Load parses the remedial templates from fsys, once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		tmpls := make(map[model.Difficulty]*template.Template)
		for _, v := range variants {
			file := "templates/remedial_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New("remedial").Option("missingkey=error").Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			tmpls[v] = tmpl
		}
		remedialTemplates = tmpls
	})
	return loadErr
}

// BuildRemedialPrompt renders the remedial prompt for the given concepts.
// An unknown difficulty falls back to the beginner template.
func BuildRemedialPrompt(difficulty model.Difficulty, concepts []string) (string, error) {
	if remedialTemplates == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := remedialTemplates[difficulty]
	if !ok {
		tmpl = remedialTemplates[model.DifficultyBeginner]
	}

	clean := SanitizeConcepts(concepts)
	if len(clean) == 0 {
		return "", errors.New("no usable concepts")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, RemedialData{
		Concepts: strings.Join(clean, ", "),
		Minutes:  defaultMinutes,
	}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SanitizeConcepts strips markup and control characters from concept tags,
// drops empties and duplicates, and caps both the count and each length.
func SanitizeConcepts(concepts []string) []string {
	seen := make(map[string]bool, len(concepts))
	var out []string
	for _, c := range concepts {
		c = conceptsTagRegex.ReplaceAllString(c, "")
		c = strings.Map(func(r rune) rune {
			switch {
			case r == '\n' || r == '\r' || r == '\t':
				return ' '
			case r == '"' || r == '<' || r == '>' || r < 0x20:
				return -1
			}
			return r
		}, c)
		c = strings.Join(strings.Fields(c), " ")
		if c == "" || seen[c] {
			continue
		}
		if utf8.RuneCountInString(c) > maxConceptLen {
			c = string([]rune(c)[:maxConceptLen])
		}
		seen[c] = true
		out = append(out, c)
		if len(out) == maxConcepts {
			break
		}
	}
	return out
}
