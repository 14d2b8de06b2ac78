package tools

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Tool parameters are declared in the tool's doc block:
//
//	Write text to a file.
//	@param path {string} required File to write
//	@param lines {array<string>} optional Extra lines
//	@param range {Range} optional Lines to replace
//	@type Range {object} A line range
//	@property Range.start {integer} required First line
//	@property Range.end {integer} optional Last line
//
// Lines without a leading @ form the description. The requirement marker may
// be written bare or in brackets ("[required]").

var (
	paramLine    = regexp.MustCompile(`^@param\s+([A-Za-z_][A-Za-z0-9_]*)\s+\{([^}]+)\}\s*(?:\[?(required|optional)\b\]?)?\s*(.*)$`)
	typeLine     = regexp.MustCompile(`^@type\s+([A-Za-z_][A-Za-z0-9_]*)\s+\{object\}\s*(.*)$`)
	propertyLine = regexp.MustCompile(`^@property\s+([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s+\{([^}]+)\}\s*(?:\[?(required|optional)\b\]?)?\s*(.*)$`)
)

var simpleTypes = map[string]bool{
	"string":  true,
	"integer": true,
	"number":  true,
	"boolean": true,
	"object":  true,
}

// Param is one declared parameter or property.
type Param struct {
	Name        string
	Type        string
	Required    bool
	Description string
}

// Simple reports whether the parameter binds onto a plain field.
func (p Param) Simple() bool {
	switch p.Type {
	case "string", "integer", "number", "boolean":
		return true
	}
	return false
}

// TypeDef is a named object type declared with @type.
type TypeDef struct {
	Name        string
	Description string
	Properties  []Param
}

// Schema is the parsed doc block of a tool.
type Schema struct {
	Description string
	Params      []Param
	Types       map[string]*TypeDef
}

// ParseDoc parses a doc block. Unknown types, duplicate names and malformed
// @ lines are errors.
func ParseDoc(doc string) (*Schema, error) {
	s := &Schema{Types: make(map[string]*TypeDef)}
	var desc []string
	seen := make(map[string]bool)

	// Properties may precede their @type line.
	type pendingProp struct {
		typeName string
		param    Param
		line     int
	}
	var props []pendingProp

	for i, raw := range strings.Split(doc, "\n") {
		line := strings.TrimSpace(raw)
		lineNo := i + 1

		switch {
		case strings.HasPrefix(line, "@param"):
			m := paramLine.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("line %d: malformed @param: %q", lineNo, line)
			}
			if seen[m[1]] {
				return nil, fmt.Errorf("line %d: duplicate parameter %q", lineNo, m[1])
			}
			seen[m[1]] = true
			s.Params = append(s.Params, Param{
				Name:        m[1],
				Type:        strings.TrimSpace(m[2]),
				Required:    m[3] == "required",
				Description: strings.TrimSpace(m[4]),
			})

		case strings.HasPrefix(line, "@type"):
			m := typeLine.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("line %d: malformed @type: %q", lineNo, line)
			}
			if simpleTypes[m[1]] || s.Types[m[1]] != nil {
				return nil, fmt.Errorf("line %d: duplicate type %q", lineNo, m[1])
			}
			s.Types[m[1]] = &TypeDef{Name: m[1], Description: strings.TrimSpace(m[2])}

		case strings.HasPrefix(line, "@property"):
			m := propertyLine.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("line %d: malformed @property: %q", lineNo, line)
			}
			props = append(props, pendingProp{
				typeName: m[1],
				line:     lineNo,
				param: Param{
					Name:        m[2],
					Type:        strings.TrimSpace(m[3]),
					Required:    m[4] == "required",
					Description: strings.TrimSpace(m[5]),
				},
			})

		case strings.HasPrefix(line, "@"):
			return nil, fmt.Errorf("line %d: unknown tag: %q", lineNo, line)

		default:
			if line != "" || len(desc) > 0 {
				desc = append(desc, line)
			}
		}
	}

	for _, p := range props {
		td := s.Types[p.typeName]
		if td == nil {
			return nil, fmt.Errorf("line %d: property of undeclared type %q", p.line, p.typeName)
		}
		for _, existing := range td.Properties {
			if existing.Name == p.param.Name {
				return nil, fmt.Errorf("line %d: duplicate property %s.%s", p.line, p.typeName, p.param.Name)
			}
		}
		td.Properties = append(td.Properties, p.param)
	}

	for _, p := range s.Params {
		if err := s.checkType(p.Type, nil); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
	}
	for _, td := range s.Types {
		for _, p := range td.Properties {
			if err := s.checkType(p.Type, []string{td.Name}); err != nil {
				return nil, fmt.Errorf("property %s.%s: %w", td.Name, p.Name, err)
			}
		}
	}

	s.Description = strings.TrimSpace(strings.Join(desc, "\n"))
	return s, nil
}

// MustParseDoc is ParseDoc for static doc blocks.
func MustParseDoc(doc string) *Schema {
	s, err := ParseDoc(doc)
	if err != nil {
		panic(fmt.Sprintf("tools: invalid doc block: %v", err))
	}
	return s
}

// elemType returns T for "array<T>".
func elemType(t string) (string, bool) {
	if strings.HasPrefix(t, "array<") && strings.HasSuffix(t, ">") {
		return strings.TrimSpace(t[len("array<") : len(t)-1]), true
	}
	return "", false
}

// checkType validates t. stack holds the named types being expanded, so a
// type that contains itself is rejected.
func (s *Schema) checkType(t string, stack []string) error {
	if elem, ok := elemType(t); ok {
		if elem == "" {
			return fmt.Errorf("array without element type")
		}
		return s.checkType(elem, stack)
	}
	if t == "array" {
		return fmt.Errorf("use array<T> for arrays")
	}
	if simpleTypes[t] {
		return nil
	}
	td, ok := s.Types[t]
	if !ok {
		return fmt.Errorf("unknown type %q", t)
	}
	for _, name := range stack {
		if name == t {
			return fmt.Errorf("type %q contains itself", t)
		}
	}
	for _, p := range td.Properties {
		if err := s.checkType(p.Type, append(stack, t)); err != nil {
			return err
		}
	}
	return nil
}

// Param returns the declared parameter called name.
func (s *Schema) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// JSONSchema renders type t, inlining named types.
func (s *Schema) JSONSchema(t, description string) map[string]any {
	out := map[string]any{}
	if elem, ok := elemType(t); ok {
		out["type"] = "array"
		out["items"] = s.JSONSchema(elem, "")
	} else if td, ok := s.Types[t]; ok {
		out["type"] = "object"
		props, required := s.properties(td.Properties)
		out["properties"] = props
		if len(required) > 0 {
			out["required"] = required
		}
		if description == "" {
			description = td.Description
		}
	} else {
		out["type"] = t
	}
	if description != "" {
		out["description"] = description
	}
	return out
}

func (s *Schema) properties(params []Param) (map[string]any, []string) {
	props := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		props[p.Name] = s.JSONSchema(p.Type, p.Description)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return props, required
}

// Definition is the tool declaration sent to the backend.
func (s *Schema) Definition(name, description string) mcptypes.Tool {
	if description == "" {
		description = s.Description
	}
	props, required := s.properties(s.Params)
	return mcptypes.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcptypes.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

// TypeNames lists the declared named types in sorted order.
func (s *Schema) TypeNames() []string {
	names := make([]string, 0, len(s.Types))
	for n := range s.Types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
