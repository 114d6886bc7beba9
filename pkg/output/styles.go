package output

import (
	_ "embed"
	"io"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/homemigrate/pkg/errors"
)

//go:embed styles.yaml
var defaultStyles []byte

// ColorDef represents an adaptive color definition in YAML
type ColorDef struct {
	Light string `yaml:"light"`
	Dark  string `yaml:"dark"`
}

// StyleDef represents a style definition in YAML
type StyleDef struct {
	Bold        bool   `yaml:"bold,omitempty"`
	Italic      bool   `yaml:"italic,omitempty"`
	Underline   bool   `yaml:"underline,omitempty"`
	Foreground  string `yaml:"foreground,omitempty"`
	MarginLeft  int    `yaml:"marginLeft,omitempty"`
	PaddingLeft int    `yaml:"paddingLeft,omitempty"`
}

// StylesConfig represents the complete styles configuration
type StylesConfig struct {
	Colors map[string]ColorDef `yaml:"colors"`
	Styles map[string]StyleDef `yaml:"styles"`
}

// Styles maps semantic names to lipgloss styles
type Styles map[string]lipgloss.Style

// LoadStyles parses a YAML styles configuration. Styles are created from r
// so that they match the color profile of its output.
func LoadStyles(data []byte, r *lipgloss.Renderer) (Styles, error) {
	var cfg StylesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to parse styles")
	}

	colors := make(map[string]lipgloss.AdaptiveColor, len(cfg.Colors))
	for name, def := range cfg.Colors {
		colors[name] = lipgloss.AdaptiveColor{Light: def.Light, Dark: def.Dark}
	}

	styles := make(Styles, len(cfg.Styles))
	for name, def := range cfg.Styles {
		style := r.NewStyle()
		if def.Bold {
			style = style.Bold(true)
		}
		if def.Italic {
			style = style.Italic(true)
		}
		if def.Underline {
			style = style.Underline(true)
		}
		if def.Foreground != "" {
			color, ok := colors[def.Foreground]
			if !ok {
				return nil, errors.Newf(errors.ErrConfigParse, "style %s uses unknown color %s", name, def.Foreground)
			}
			style = style.Foreground(color)
		}
		if def.MarginLeft > 0 {
			style = style.MarginLeft(def.MarginLeft)
		}
		if def.PaddingLeft > 0 {
			style = style.PaddingLeft(def.PaddingLeft)
		}
		styles[name] = style
	}
	return styles, nil
}

// DefaultStyles returns the embedded styles for output written to w. No
// style is applied when they cannot be loaded.
func DefaultStyles(w io.Writer) Styles {
	styles, err := LoadStyles(defaultStyles, lipgloss.NewRenderer(w))
	if err != nil {
		return Styles{}
	}
	return styles
}

// Render renders text with the named style. Unknown styles leave the text
// untouched.
func (s Styles) Render(name, text string) string {
	style, ok := s[name]
	if !ok {
		return text
	}
	return style.Render(text)
}
