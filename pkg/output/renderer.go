package output

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/logging"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Format is an output format
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an output format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", errors.Newf(errors.ErrInvalidInput, "unknown output format %s; expecting text, json or yaml", s).
			WithDetail("format", s)
	}
}

// Renderer writes views in one format. Text output goes through the
// embedded templates with lipgloss styling; json and yaml encode the view
// itself.
type Renderer struct {
	templates *template.Template
	writer    io.Writer
	format    Format
	styles    Styles
	noColor   bool
}

// NewRenderer creates a Renderer writing to w. Colors are disabled when
// noColor is set or NO_COLOR is present in the environment.
func NewRenderer(w io.Writer, format Format, noColor bool) (*Renderer, error) {
	logger := logging.GetLogger("output.renderer")

	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		noColor = true
	}
	r := &Renderer{
		writer:  w,
		format:  format,
		noColor: noColor,
	}

	if !noColor {
		lr := lipgloss.NewRenderer(w)
		logger.Debug().Str("colorProfile", fmt.Sprintf("%v", lr.ColorProfile())).Msg("Lipgloss renderer created")
		styles, err := LoadStyles(defaultStyles, lr)
		if err != nil {
			return nil, err
		}
		r.styles = styles
	}

	tmpl, err := template.New("output").Funcs(template.FuncMap{
		"style":    r.style,
		"outcome":  r.outcome,
		"versions": versions,
	}).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to parse templates")
	}
	r.templates = tmpl
	return r, nil
}

// Render writes data. name selects the template used for text output.
func (r *Renderer) Render(name string, data interface{}) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.writer)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		return r.templates.ExecuteTemplate(r.writer, name, data)
	}
}

func (r *Renderer) style(name, text string) string {
	if r.noColor {
		return text
	}
	return r.styles.Render(name, text)
}

func (r *Renderer) outcome(o string) string {
	switch o {
	case "imported":
		return r.style("Success", o)
	case "unknown":
		return r.style("Error", o)
	case "missing", "incompatible":
		return r.style("Warning", o)
	default:
		return r.style("Muted", o)
	}
}

func versions(l ContextListing) string {
	switch {
	case !l.Known:
		return fmt.Sprintf("(archived %s, no longer available)", orNone(l.ArchivedVersion))
	case l.ArchivedVersion == l.Version:
		return fmt.Sprintf("(version %s)", l.Version)
	default:
		return fmt.Sprintf("(archived %s, current %s)", orNone(l.ArchivedVersion), l.Version)
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
