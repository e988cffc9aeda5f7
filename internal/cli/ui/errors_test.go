package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/conduit-lang/contentschema/internal/orm/conflict"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
		excludes []string
	}{
		{
			name: "context and problem",
			opts: ErrorOptions{
				Level:   ErrorLevelError,
				Context: "attribute not found",
				Problem: "No object type has an attribute named 'titel'.",
			},
			contains: []string{"❌", "ATTRIBUTE NOT FOUND: No object type"},
			excludes: []string{"Did you mean"},
		},
		{
			name: "suggestions and help",
			opts: ErrorOptions{
				Level:        ErrorLevelError,
				Problem:      "unknown attribute",
				Suggestions:  []string{"title", "tags"},
				HelpCommands: []string{"contentschema export"},
			},
			contains: []string{"Did you mean: title, tags?", "→ contentschema export"},
		},
		{
			name: "warning with details",
			opts: ErrorOptions{
				Level:   ErrorLevelWarning,
				Problem: "migration may cause data loss",
				Details: []string{"drop_attribute 4.body"},
			},
			contains: []string{"⚠️", "   drop_attribute 4.body\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.NoColor = true
			got := FormatError(tt.opts)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("expected %q in:\n%s", s, got)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("unexpected %q in:\n%s", s, got)
				}
			}
		})
	}
}

func TestConflictError(t *testing.T) {
	err := &conflict.ConflictError{
		Types:      []*schema.ObjectType{schema.NewObjectType(7, "video")},
		Attributes: []*schema.AttributeType{{ObjectTypeID: 4, Name: "title", Kind: schema.KindShortText}},
	}

	got := ConflictError(err, true)
	for _, s := range []string{
		"SCHEMA CONFLICT: 2 definitions collide",
		"object type 7 (video)",
		"attribute title of object type 4 (string)",
		"Nothing was written.",
	} {
		if !strings.Contains(got, s) {
			t.Errorf("expected %q in:\n%s", s, got)
		}
	}
}

func TestStructureChangeError(t *testing.T) {
	got := StructureChangeError("title", []string{"create node.quick_title"}, true)
	if !strings.Contains(got, "create node.quick_title") {
		t.Errorf("changes missing from:\n%s", got)
	}
	if !strings.Contains(got, "contentschema sync title --force-structure-change") {
		t.Errorf("repair command missing from:\n%s", got)
	}
}

func TestWriteSuccess(t *testing.T) {
	var buf bytes.Buffer
	WriteSuccess(&buf, "applied 3 migrations", true)
	if buf.String() != "✓ applied 3 migrations\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}
