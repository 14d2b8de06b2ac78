package tools

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

const editDoc = `Apply edits to a file.
Each edit replaces a line range.
@param path {string} required File to edit
@param edits {array<Edit>} required Edits to apply
@param dry_run {boolean} optional Only report what would change
@param tags {array<string>} optional Free-form labels
@type Edit {object} One replacement
@property Edit.range {Range} required Lines to replace
@property Edit.text {string} optional Replacement text
@type Range {object} A line range
@property Range.start {integer} required First line
@property Range.end {integer} [optional] Last line`

func TestParseDoc(t *testing.T) {
	s, err := ParseDoc(editDoc)
	if err != nil {
		t.Fatalf("ParseDoc() error = %v", err)
	}

	if s.Description != "Apply edits to a file.\nEach edit replaces a line range." {
		t.Errorf("Description = %q", s.Description)
	}
	if len(s.Params) != 4 {
		t.Fatalf("Params = %+v", s.Params)
	}
	want := Param{Name: "edits", Type: "array<Edit>", Required: true, Description: "Edits to apply"}
	if s.Params[1] != want {
		t.Errorf("Params[1] = %+v, want %+v", s.Params[1], want)
	}
	if p, _ := s.Param("dry_run"); p.Required || p.Type != "boolean" {
		t.Errorf("dry_run = %+v", p)
	}
	if got := s.TypeNames(); !reflect.DeepEqual(got, []string{"Edit", "Range"}) {
		t.Errorf("TypeNames() = %v", got)
	}
	if r := s.Types["Range"]; len(r.Properties) != 2 || r.Properties[1].Required {
		t.Errorf("Range = %+v", r)
	}
}

func TestParseDocErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown type", "@param a {widget} required x", "unknown type"},
		{"bare array", "@param a {array} required x", "array<T>"},
		{"duplicate param", "@param a {string}\n@param a {integer}", "duplicate parameter"},
		{"malformed param", "@param {string} a", "malformed @param"},
		{"unknown tag", "@returns {string}", "unknown tag"},
		{"property of undeclared type", "@property Foo.bar {string} x", "undeclared type"},
		{"self reference", "@type Node {object}\n@property Node.next {Node} optional\n@param n {Node}", "contains itself"},
		{"duplicate type", "@type A {object}\n@type A {object}", "duplicate type"},
		{"non-object type", "@type A {string} text", "malformed @type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDoc(tt.doc)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ParseDoc() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestMustParseDocPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParseDoc did not panic")
		}
	}()
	MustParseDoc("@param a {nope}")
}

func TestDefinition(t *testing.T) {
	s := MustParseDoc(editDoc)
	def := s.Definition("edit_file", "")

	if def.Name != "edit_file" || def.Description != s.Description {
		t.Errorf("def = %+v", def)
	}
	in := def.InputSchema
	if in.Type != "object" || !reflect.DeepEqual(in.Required, []string{"path", "edits"}) {
		t.Errorf("input schema = %+v", in)
	}

	edits := in.Properties["edits"].(map[string]any)
	if edits["type"] != "array" {
		t.Fatalf("edits = %v", edits)
	}
	item := edits["items"].(map[string]any)
	if item["type"] != "object" || item["description"] != "One replacement" {
		t.Errorf("edit item = %v", item)
	}
	rng := item["properties"].(map[string]any)["range"].(map[string]any)
	if rng["description"] != "Lines to replace" {
		t.Errorf("range description = %v", rng["description"])
	}
	if !reflect.DeepEqual(rng["required"], []string{"start"}) {
		t.Errorf("range required = %v", rng["required"])
	}
	tags := in.Properties["tags"].(map[string]any)
	if tags["items"].(map[string]any)["type"] != "string" {
		t.Errorf("tags = %v", tags)
	}
}

type editArgs struct {
	Path   string `json:"path"`
	DryRun bool
	Edits  []struct {
		Range struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"range"`
		Text string `json:"text"`
	} `json:"edits"`
}

func TestBind(t *testing.T) {
	s := MustParseDoc(editDoc)

	tests := []struct {
		name     string
		args     Args
		wantErr  string
		validate func(t *testing.T, a editArgs)
	}{
		{
			name: "simple and nested values",
			args: Args{
				"path":    "main.go",
				"dry_run": true,
				"edits": []any{
					map[string]any{"range": map[string]any{"start": 3.0, "end": 4.0}, "text": "x"},
				},
			},
			validate: func(t *testing.T, a editArgs) {
				if a.Path != "main.go" || !a.DryRun {
					t.Errorf("simple fields = %+v", a)
				}
				if len(a.Edits) != 1 || a.Edits[0].Range.Start != 3 || a.Edits[0].Text != "x" {
					t.Errorf("edits = %+v", a.Edits)
				}
			},
		},
		{
			name: "string booleans are accepted",
			args: Args{"path": "a", "edits": []any{}, "dry_run": "true"},
			validate: func(t *testing.T, a editArgs) {
				if !a.DryRun {
					t.Error("dry_run not set")
				}
			},
		},
		{
			name:    "missing required",
			args:    Args{"path": "a"},
			wantErr: `missing required parameter "edits"`,
		},
		{
			name:    "wrong simple type",
			args:    Args{"path": 5.0, "edits": []any{}},
			wantErr: `"path" must be a string`,
		},
		{
			name:    "array expected",
			args:    Args{"path": "a", "edits": "nope"},
			wantErr: `"edits" must be an array`,
		},
		{
			name:    "nested required property",
			args:    Args{"path": "a", "edits": []any{map[string]any{"text": "x"}}},
			wantErr: `"edits[0]" is missing required property "range"`,
		},
		{
			name:    "nested type mismatch",
			args:    Args{"path": "a", "edits": []any{map[string]any{"range": map[string]any{"start": 1.5}}}},
			wantErr: `"edits[0].range.start" must be an integer`,
		},
		{
			name:    "array item kind",
			args:    Args{"path": "a", "edits": []any{}, "tags": []any{"ok", 3.0}},
			wantErr: `"tags[1]" must be a string`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a editArgs
			err := Bind(s, tt.args, &a)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Bind() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Bind() error = %v", err)
			}
			tt.validate(t, a)
		})
	}
}

func TestBindNumbers(t *testing.T) {
	s := MustParseDoc("@param count {integer} required\n@param ratio {number} optional")
	var dst struct {
		Count int64
		Ratio float32
	}
	if err := Bind(s, Args{"count": "42", "ratio": 0.5}, &dst); err != nil {
		t.Fatal(err)
	}
	if dst.Count != 42 || dst.Ratio != 0.5 {
		t.Errorf("dst = %+v", dst)
	}
	if err := Bind(s, Args{"count": 1.0}, dst); err == nil {
		t.Error("non-pointer target should fail")
	}

	for _, v := range []float64{1e30, -1e30, 9223372036854775808.0} {
		if err := Bind(s, Args{"count": v}, &dst); err == nil {
			t.Errorf("count %g bound as %d, want an error", v, dst.Count)
		}
	}
	if err := Bind(s, Args{"count": -9223372036854775808.0}, &dst); err != nil || dst.Count != math.MinInt64 {
		t.Errorf("MinInt64 = %d, %v", dst.Count, err)
	}
}
