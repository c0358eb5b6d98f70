package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/quarry/internal/model"
)

// ModelInfo describes one model for the models command.
type ModelInfo struct {
	Name       string         `json:"name"`
	Properties []PropertyInfo `json:"properties"`
}

// PropertyInfo describes one property for the models command.
type PropertyInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Column     string `json:"column"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	Required   bool   `json:"required,omitempty"`
	Default    any    `json:"default,omitempty"`
	Ref        string `json:"ref,omitempty"`
	Embed      bool   `json:"embed,omitempty"`
}

// NewModelsCommand creates the models command.
func NewModelsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models defined in the schema file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			s, err := opts.loadModels()
			if err != nil {
				return f.Fail(err)
			}
			infos := describeModels(s.models.Models())
			if f.Format == "json" {
				return f.Success(infos)
			}
			for _, m := range infos {
				fmt.Fprintln(f.Writer, m)
			}
			return nil
		},
	}
}

func describeModels(schemas []*model.Schema) []ModelInfo {
	out := make([]ModelInfo, 0, len(schemas))
	for _, s := range schemas {
		info := ModelInfo{Name: s.Name()}
		for _, p := range s.Properties() {
			info.Properties = append(info.Properties, PropertyInfo{
				Name:       p.Name,
				Type:       p.Type.String(),
				Column:     p.Column(),
				PrimaryKey: p.PrimaryKey,
				Required:   p.Required,
				Default:    p.Default,
				Ref:        p.Ref,
				Embed:      p.Embed,
			})
		}
		out = append(out, info)
	}
	return out
}

// String renders "name(prop type, ...)" with markers for keys, required
// properties and renamed columns.
func (m ModelInfo) String() string {
	parts := make([]string, len(m.Properties))
	for i, p := range m.Properties {
		var b strings.Builder
		b.WriteString(p.Name)
		b.WriteByte(' ')
		if p.Ref != "" {
			b.WriteString("ref(" + p.Ref + ")")
		} else {
			b.WriteString(p.Type)
		}
		if p.PrimaryKey {
			b.WriteString(" pk")
		}
		if p.Required {
			b.WriteString(" required")
		}
		if p.Column != p.Name {
			b.WriteString(" as " + p.Column)
		}
		parts[i] = b.String()
	}
	return fmt.Sprintf("%s(%s)", m.Name, strings.Join(parts, ", "))
}
