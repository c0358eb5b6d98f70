package schemafile

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// ParseCUE evaluates one CUE file and reads the models under "model".
func ParseCUE(filename string, src []byte) ([]Definition, error) {
	v := cuecontext.New().CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return definitions(v)
}

// ParseCUEDir loads the CUE package in dir.
func ParseCUEDir(dir string) ([]Definition, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Path: dir, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}
	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return definitions(v)
}

func definitions(v cue.Value) ([]Definition, error) {
	models := v.LookupPath(cue.ParsePath("model"))
	if !models.Exists() {
		return nil, &Error{Path: "model", Message: "no models defined", Pos: v.Pos()}
	}
	iter, err := models.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []Definition
	for iter.Next() {
		d, err := definition(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	if len(defs) == 0 {
		return nil, &Error{Path: "model", Message: "no models defined", Pos: models.Pos()}
	}
	return defs, nil
}

func definition(name string, v cue.Value) (Definition, error) {
	d := Definition{Name: name, pos: v.Pos()}
	path := "model." + name

	props := v.LookupPath(cue.ParsePath("properties"))
	if !props.Exists() {
		return d, &Error{Path: path + ".properties", Message: "properties are required", Pos: v.Pos()}
	}
	list, err := props.List()
	if err != nil {
		return d, formatCUEError(err)
	}
	for i := 0; list.Next(); i++ {
		pd, err := property(fmt.Sprintf("%s.properties[%d]", path, i), list.Value())
		if err != nil {
			return d, err
		}
		d.Properties = append(d.Properties, pd)
	}
	return d, nil
}

func property(path string, v cue.Value) (PropertyDef, error) {
	pd := PropertyDef{pos: v.Pos()}
	iter, err := v.Fields()
	if err != nil {
		return pd, formatCUEError(err)
	}

	for iter.Next() {
		label, fv := iter.Selector().Unquoted(), iter.Value()
		switch label {
		case "name":
			pd.Name, err = fv.String()
		case "type":
			pd.Type, err = fv.String()
		case "column":
			pd.Column, err = fv.String()
		case "ref":
			pd.Ref, err = fv.String()
		case "primary_key":
			pd.PrimaryKey, err = fv.Bool()
		case "required":
			pd.Required, err = fv.Bool()
		case "embed":
			pd.Embed, err = fv.Bool()
		case "default":
			pd.Default, err = defaultValue(fv)
		default:
			return pd, &Error{Path: path + "." + label, Message: "unknown property field", Pos: fv.Pos()}
		}
		if err != nil {
			return pd, formatCUEError(err)
		}
	}
	if pd.Name == "" {
		return pd, &Error{Path: path + ".name", Message: "name is required", Pos: v.Pos()}
	}
	return pd, nil
}

func defaultValue(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	default:
		var out any
		err := v.Decode(&out)
		return out, err
	}
}

func formatCUEError(err error) error {
	list := errors.Errors(err)
	if len(list) == 0 {
		return err
	}
	first := list[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{Path: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
