package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/contentschema/internal/orm/conflict"
)

// ErrorLevel represents the severity of an error message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Details      []string
	Consequence  string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a standardized error message with suggestions and help commands
//
// Example output:
//
//	❌ SCHEMA CONFLICT: 2 definitions collide
//	   attribute title of object type 4 (string)
//	   object type 7 (video)
//
//	   Nothing was written.
//
//	   → Compare schemas: contentschema diff old.yaml new.yaml
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var headerColor, bodyColor *color.Color
	var symbol string

	switch opts.Level {
	case ErrorLevelError:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "❌"
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "ℹ️"
	}

	if opts.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	for _, d := range opts.Details {
		bodyColor.Fprintf(&b, "   %s\n", d)
	}

	if opts.Consequence != "" {
		b.WriteString("\n")
		bodyColor.Fprintf(&b, "   %s\n", opts.Consequence)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := color.New(color.FgCyan)
		if opts.NoColor {
			cyan.DisableColor()
		}
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// ConflictError lists every stored or payload definition a save collided with
func ConflictError(err *conflict.ConflictError, noColor bool) string {
	var details []string
	for _, t := range err.Types {
		details = append(details, fmt.Sprintf("object type %d (%s)", t.TypeID, t.Name))
	}
	for _, a := range err.Attributes {
		details = append(details, fmt.Sprintf("attribute %s of object type %d (%s)", a.Name, a.ObjectTypeID, a.Kind))
	}
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "SCHEMA CONFLICT",
		Problem:     fmt.Sprintf("%d definitions collide", len(details)),
		Details:     details,
		Consequence: "Nothing was written.",
		HelpCommands: []string{
			"Export the stored schema: contentschema export -o current.yaml",
			"Compare schemas: contentschema diff current.yaml <file>",
		},
		NoColor: noColor,
	})
}

// StructureChangeError explains a quick column change that needs --force-structure-change
func StructureChangeError(attribute string, changes []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "STRUCTURE CHANGE REFUSED",
		Problem:     fmt.Sprintf("quick column of attribute %s needs table changes", attribute),
		Details:     changes,
		Consequence: "The metadata row may already be written; the node table was not altered.",
		HelpCommands: []string{
			"Allow table changes: rerun with --force-structure-change",
			"Repair later: contentschema sync " + attribute + " --force-structure-change",
		},
		NoColor: noColor,
	})
}

// UnknownAttributeError reports an attribute name no object type uses
func UnknownAttributeError(name string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:        ErrorLevelError,
		Context:      "ATTRIBUTE NOT FOUND",
		Problem:      fmt.Sprintf("No object type has an attribute named '%s'.", name),
		Suggestions:  suggestions,
		HelpCommands: []string{"List the stored schema: contentschema export"},
		NoColor:      noColor,
	})
}

// MigrationError creates a standardized migration error
func MigrationError(message string, consequence string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "MIGRATION FAILED",
		Problem:     message,
		Consequence: consequence,
		HelpCommands: []string{
			"Check migration status: contentschema migrate status",
			"Get help: contentschema migrate --help",
		},
		NoColor: noColor,
	})
}

// Warning creates a standardized warning message
func Warning(message string, details []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelWarning,
		Problem: message,
		Details: details,
		NoColor: noColor,
	})
}

// Info creates a standardized info message
func Info(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelInfo,
		Problem: message,
		NoColor: noColor,
	})
}
