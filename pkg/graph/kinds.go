package graph

import "fmt"

// SettingsValidator checks a kind-specific settings payload structurally and
// returns field-level validation errors. It must not mutate the graph.
type SettingsValidator func(settings map[string]interface{}) ValidationErrors

// kindSpec is the registry entry for one node kind: its input shape and its
// settings validator.
type kindSpec struct {
	shape     InputShape
	validator SettingsValidator
}

var registry = map[Kind]kindSpec{
	KindManualInput:  {shape: InputShape{}, validator: validateManualInput},
	KindRead:         {shape: InputShape{}, validator: validateRead},
	KindDatabaseRead: {shape: InputShape{}, validator: validateRead},
	KindFilter:       {shape: InputShape{Main: true}, validator: requireField("filter_expression")},
	KindSelect:       {shape: InputShape{Main: true}, validator: requireField("columns")},
	KindSort:         {shape: InputShape{Main: true}, validator: requireField("columns")},
	KindGroupBy:      {shape: InputShape{Main: true}, validator: requireField("group_by_columns")},
	KindJoin:         {shape: InputShape{Left: true, Right: true}, validator: validateJoin},
	KindCrossJoin:    {shape: InputShape{Left: true, Right: true}, validator: noValidation},
	KindUnion:        {shape: InputShape{Main: true}, validator: noValidation},
	KindPivot:        {shape: InputShape{Main: true}, validator: requireField("index_columns")},
	KindUnpivot:      {shape: InputShape{Main: true}, validator: requireField("value_columns")},
	KindRecordID:     {shape: InputShape{Main: true}, validator: noValidation},
	KindFormula:      {shape: InputShape{Main: true}, validator: requireField("formula")},
	KindPolarsCode:   {shape: InputShape{Main: true}, validator: requireField("code")},
	KindPythonScript: {shape: InputShape{Main: true}, validator: requireField("code")},
	KindOutput:       {shape: InputShape{Main: true}, validator: requireField("path")},
	KindCache:        {shape: InputShape{Main: true}, validator: noValidation},
	KindFuzzyMatch:   {shape: InputShape{Left: true, Right: true}, validator: requireField("mapping")},
	KindUserDefined:  {shape: InputShape{Main: true}, validator: noValidation},
}

// Shape returns the declared input shape for a kind, or an all-false shape
// for an unregistered kind.
func Shape(k Kind) InputShape {
	if spec, ok := registry[k]; ok {
		return spec.shape
	}
	return InputShape{}
}

// Validate runs the kind-specific settings validator.
func Validate(k Kind, settings map[string]interface{}) ValidationErrors {
	spec, ok := registry[k]
	if !ok {
		return ValidationErrors{{Field: "kind", Reason: fmt.Sprintf("unknown node kind %q", k)}}
	}
	return spec.validator(settings)
}

func noValidation(map[string]interface{}) ValidationErrors { return nil }

func requireField(name string) SettingsValidator {
	return func(settings map[string]interface{}) ValidationErrors {
		v, ok := settings[name]
		if !ok || v == nil {
			return ValidationErrors{{Field: name, Reason: "is required"}}
		}
		return nil
	}
}

func validateManualInput(settings map[string]interface{}) ValidationErrors {
	if _, ok := settings["data"]; !ok {
		return ValidationErrors{{Field: "data", Reason: "is required"}}
	}
	return nil
}

func validateRead(settings map[string]interface{}) ValidationErrors {
	if _, ok := settings["path"]; !ok {
		return ValidationErrors{{Field: "path", Reason: "is required"}}
	}
	return nil
}

func validateJoin(settings map[string]interface{}) ValidationErrors {
	var errs ValidationErrors
	how, ok := settings["how"].(string)
	if !ok || how == "" {
		errs = append(errs, &ValidationError{Field: "how", Reason: "is required"})
	} else {
		valid := map[string]bool{"inner": true, "left": true, "right": true, "outer": true, "semi": true, "anti": true, "cross": true}
		if !valid[how] {
			errs = append(errs, &ValidationError{Field: "how", Reason: "must be one of inner, left, right, outer, semi, anti, cross"})
		}
	}
	if _, ok := settings["on"]; !ok {
		errs = append(errs, &ValidationError{Field: "on", Reason: "is required"})
	}
	return errs
}
