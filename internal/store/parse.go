package store

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeanpaul/relay/internal/schema"
)

// Agent files are a metadata header (key: value pairs) separated from the
// free-form body by the first blank line. The body is used verbatim as the
// system prompt.
//
//	name: reviewer
//	description: Reviews code for quality issues
//	keywords: review, quality
//
//	You are a meticulous code reviewer...

// header mirrors the metadata block. Keywords and tools accept both a YAML
// sequence and a comma-separated scalar, since agent files are hand-edited.
type header struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Keywords    commaList `yaml:"keywords,omitempty"`
	Tools       commaList `yaml:"tools,omitempty"`
	Model       string    `yaml:"model,omitempty"`
	Provider    string    `yaml:"provider,omitempty"`
	Temperature float64   `yaml:"temperature,omitempty"`
	MaxTokens   int       `yaml:"maxTokens,omitempty"`
	Color       string    `yaml:"color,omitempty"`
}

type commaList []string

func (c *commaList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		parts := strings.Split(value.Value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*c = out
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*c = list
	return nil
}

// headerSchema catches type-level mistakes the yaml decode alone would let
// through (negative token limits, out-of-range temperature).
var headerSchema = map[string]any{
	"type":     "object",
	"required": []string{"name", "description"},
	"properties": map[string]any{
		"name":        map[string]any{"type": "string", "minLength": 1, "pattern": `^\S+$`},
		"description": map[string]any{"type": "string", "minLength": 1},
		"keywords":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"tools":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"model":       map[string]any{"type": "string"},
		"provider":    map[string]any{"type": "string"},
		"temperature": map[string]any{"type": "number", "minimum": 0, "maximum": 2},
		"maxTokens":   map[string]any{"type": "integer", "minimum": 0},
		"color":       map[string]any{"type": "string"},
	},
	"additionalProperties": false,
}

var headerValidator = schema.NewValidator()

// Parse decodes one agent specification document.
func Parse(data []byte) (*Definition, error) {
	head, body := splitDocument(string(data))
	if strings.TrimSpace(head) == "" {
		return nil, fmt.Errorf("store: empty metadata header")
	}

	// Strict decode: unknown keys are author mistakes, not extension points.
	dec := yaml.NewDecoder(strings.NewReader(head))
	dec.KnownFields(true)
	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("store: invalid metadata header: %w", err)
	}

	doc := map[string]any{
		"name":        h.Name,
		"description": h.Description,
	}
	if len(h.Keywords) > 0 {
		doc["keywords"] = []string(h.Keywords)
	}
	if len(h.Tools) > 0 {
		doc["tools"] = []string(h.Tools)
	}
	if h.Model != "" {
		doc["model"] = h.Model
	}
	if h.Provider != "" {
		doc["provider"] = h.Provider
	}
	if h.Temperature != 0 {
		doc["temperature"] = h.Temperature
	}
	if h.MaxTokens != 0 {
		doc["maxTokens"] = h.MaxTokens
	}
	if h.Color != "" {
		doc["color"] = h.Color
	}
	if err := headerValidator.Validate(headerSchema, doc); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	return &Definition{
		Name:          h.Name,
		Description:   h.Description,
		Keywords:      h.Keywords,
		ToolAllowlist: h.Tools,
		ModelHint:     h.Model,
		ProviderHint:  h.Provider,
		Temperature:   h.Temperature,
		MaxTokens:     h.MaxTokens,
		Color:         h.Color,
		SystemPrompt:  strings.TrimSpace(body),
	}, nil
}

// ParseFile reads and decodes one agent file, stamping scope and provenance.
func ParseFile(path string, scope Scope) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", path, err)
	}
	def.Scope = scope
	def.SourcePath = path
	if info, err := os.Stat(path); err == nil {
		def.LastModified = info.ModTime()
	}
	return def, nil
}

// Encode renders a definition back into the file format. Parse(Encode(d))
// yields a field-for-field equivalent definition.
func Encode(def *Definition) ([]byte, error) {
	h := header{
		Name:        def.Name,
		Description: def.Description,
		Keywords:    def.Keywords,
		Tools:       def.ToolAllowlist,
		Model:       def.ModelHint,
		Provider:    def.ProviderHint,
		Temperature: def.Temperature,
		MaxTokens:   def.MaxTokens,
		Color:       def.Color,
	}
	head, err := yaml.Marshal(&h)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", def.Name, err)
	}
	var b strings.Builder
	b.Write(head)
	b.WriteString("\n")
	b.WriteString(def.SystemPrompt)
	b.WriteString("\n")
	return []byte(b.String()), nil
}

// WriteDefinition persists a definition into dir as <name>.agent.
func WriteDefinition(dir string, def *Definition) (string, error) {
	data, err := Encode(def)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("store: create %s: %w", dir, err)
	}
	path := dir + string(os.PathSeparator) + def.Name + ".agent"
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("store: write %s: %w", path, err)
	}
	return path, nil
}

// splitDocument separates the metadata header from the body at the first
// blank line. A document without a blank line is all header.
func splitDocument(src string) (head, body string) {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			return strings.Join(lines[:i], "\n"), strings.Join(lines[i+1:], "\n")
		}
	}
	return src, ""
}
