package remedial

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pavelanni/learnpath/internal/model"
	"github.com/pavelanni/learnpath/internal/schema"
)

var fenceRegex = regexp.MustCompile("```[a-zA-Z]*")

// ErrNoJSON is returned when the text holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// ParseStub extracts a lesson stub from free text produced by a model.
// Code fences are stripped, the outermost JSON object (or the first object of
// a JSON array) is decoded and the result is validated against the stub schema.
func ParseStub(raw string) (*model.LessonStub, error) {
	text := strings.TrimSpace(fenceRegex.ReplaceAllString(raw, ""))

	obj, err := extractObject(text)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(schema.LessonStub, obj); err != nil {
		return nil, err
	}

	var stub model.LessonStub
	if err := json.Unmarshal(obj, &stub); err != nil {
		return nil, fmt.Errorf("decode stub: %w", err)
	}
	stub.Title = strings.TrimSpace(stub.Title)
	return &stub, nil
}

func extractObject(text string) ([]byte, error) {
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')

	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		end := strings.LastIndexByte(text, ']')
		if end > arrStart {
			var items []json.RawMessage
			if err := json.Unmarshal([]byte(text[arrStart:end+1]), &items); err == nil {
				for _, it := range items {
					s := strings.TrimSpace(string(it))
					if strings.HasPrefix(s, "{") {
						return []byte(s), nil
					}
				}
				return nil, ErrNoJSON
			}
		}
	}

	if objStart < 0 {
		return nil, ErrNoJSON
	}
	end := strings.LastIndexByte(text, '}')
	if end <= objStart {
		return nil, ErrNoJSON
	}
	obj := []byte(text[objStart : end+1])
	if !json.Valid(obj) {
		return nil, fmt.Errorf("malformed JSON object: %w", ErrNoJSON)
	}
	return obj, nil
}
