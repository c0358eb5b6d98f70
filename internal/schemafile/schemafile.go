// Package schemafile loads model definitions from YAML or CUE files.
//
// Both formats describe the same structure: a list of models, each with an
// ordered list of properties.
//
//	# models.yaml
//	models:
//	  - name: fruit
//	    properties:
//	      - {name: name, type: string, required: true}
//	      - {name: color, type: string, column: colour}
//	      - {name: id, type: int, primary_key: true}
//	      - {name: ripe, type: bool, default: false}
//
//	// models.cue
//	model: fruit: properties: [
//		{name: "name", type: "string", required: true},
//		{name: "id", type: "int", primary_key: true},
//	]
//
// References name their target model with ref; targets may be declared in
// any order within one load.
package schemafile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/quarry/internal/model"
)

// Definition is one model as written in a schema file.
type Definition struct {
	Name       string        `yaml:"name"`
	Properties []PropertyDef `yaml:"properties"`

	pos token.Pos
}

// PropertyDef is one property as written in a schema file.
type PropertyDef struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	PrimaryKey bool   `yaml:"primary_key"`
	Required   bool   `yaml:"required"`
	Default    any    `yaml:"default"`
	Column     string `yaml:"column"`
	Ref        string `yaml:"ref"`
	Embed      bool   `yaml:"embed"`

	pos token.Pos
}

// Error reports an invalid definition, with its CUE position when known.
type Error struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Load reads a .yaml, .yml or .cue file, or a directory holding one CUE
// package, and defines its models in reg.
func Load(path string, reg *model.Registry) ([]*model.Schema, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("schema file: %w", err)
	}

	var defs []Definition
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case info.IsDir():
		defs, err = ParseCUEDir(path)
	case ext == ".cue":
		var src []byte
		if src, err = os.ReadFile(path); err == nil {
			defs, err = ParseCUE(path, src)
		}
	case ext == ".yaml" || ext == ".yml":
		var src []byte
		if src, err = os.ReadFile(path); err == nil {
			defs, err = ParseYAML(src)
		}
	default:
		return nil, fmt.Errorf("schema file %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return nil, err
	}
	return Build(reg, defs)
}

// Build defines every model in reg, resolving references between them.
// Schemas are returned in definition order.
func Build(reg *model.Registry, defs []Definition) ([]*model.Schema, error) {
	built := make(map[string]*model.Schema, len(defs))
	pending := make([]int, len(defs))
	for i := range defs {
		pending[i] = i
	}

	for len(pending) > 0 {
		var next []int
		for _, i := range pending {
			props, ready, err := defs[i].properties(reg, built)
			if err != nil {
				return nil, err
			}
			if !ready {
				next = append(next, i)
				continue
			}
			s, err := reg.Define(defs[i].Name, props...)
			if err != nil {
				return nil, &Error{Path: "model." + defs[i].Name, Message: err.Error(), Pos: defs[i].pos}
			}
			built[s.Name()] = s
		}
		if len(next) == len(pending) {
			d := defs[next[0]]
			return nil, &Error{Path: "model." + d.Name, Message: "unresolved or circular reference", Pos: d.pos}
		}
		pending = next
	}

	out := make([]*model.Schema, len(defs))
	for i, d := range defs {
		out[i] = built[d.Name]
	}
	return out, nil
}

// properties converts the property definitions. ready is false while a
// referenced model is not yet defined.
func (d Definition) properties(reg *model.Registry, built map[string]*model.Schema) (props []model.Property, ready bool, err error) {
	for i, pd := range d.Properties {
		path := fmt.Sprintf("model.%s.properties[%d]", d.Name, i)
		t, err := model.ParseFieldType(pd.Type)
		if err != nil {
			return nil, false, &Error{Path: path + ".type", Message: err.Error(), Pos: pd.pos}
		}

		var opts []model.Option
		if pd.PrimaryKey {
			opts = append(opts, model.PrimaryKey())
		}
		if pd.Required {
			opts = append(opts, model.Required())
		}
		if pd.Default != nil {
			opts = append(opts, model.Default(pd.Default))
		}
		if pd.Column != "" {
			opts = append(opts, model.StorageName(pd.Column))
		}
		if t == model.TypeRef {
			if pd.Ref == "" {
				return nil, false, &Error{Path: path + ".ref", Message: "reference needs a target model", Pos: pd.pos}
			}
			target, ok := built[pd.Ref]
			if !ok {
				target, ok = reg.Lookup(pd.Ref)
			}
			if !ok {
				return nil, false, nil
			}
			opts = append(opts, model.Ref(target))
			if pd.Embed {
				opts = append(opts, model.Embed())
			}
		} else if pd.Ref != "" {
			return nil, false, &Error{Path: path + ".ref", Message: "only ref properties name a target", Pos: pd.pos}
		}
		props = append(props, model.Prop(pd.Name, t, opts...))
	}
	return props, true, nil
}
