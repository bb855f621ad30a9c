package schema

import (
	"sort"
	"strconv"
	"strings"
)

// standardDirectives are declared by every schema and never rendered.
var standardDirectives = map[string]bool{
	"include":     true,
	"skip":        true,
	"deprecated":  true,
	"specifiedBy": true,
	"defer":       true,
	"oneOf":       true,
}

// Render produces SDL for the user-visible part of s: built-in types and
// standard directives are omitted, and applied directives such as @entity
// and @subgraphId are kept. Types and directives are sorted by name.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var b strings.Builder

	names := make([]string, 0, len(s.Types))
	for name, t := range s.Types {
		if t.BuiltIn || strings.HasPrefix(name, "__") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		renderType(&b, s.Types[name])
	}

	directives := make([]string, 0, len(s.Directives))
	for name := range s.Directives {
		if !standardDirectives[name] {
			directives = append(directives, name)
		}
	}
	sort.Strings(directives)
	for _, name := range directives {
		renderDirective(&b, s.Directives[name])
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderType(b *strings.Builder, t *Type) {
	renderDescription(b, t.Description, "")
	switch t.Kind {
	case TypeKindScalar:
		b.WriteString("scalar " + t.Name)
		if t.SpecifiedByURL != nil {
			b.WriteString(" @specifiedBy(url: " + strconv.Quote(*t.SpecifiedByURL) + ")")
		}
		b.WriteString("\n\n")
	case TypeKindUnion:
		b.WriteString("union " + t.Name + renderUses(t.Directives) + " = " + strings.Join(t.PossibleTypes, " | ") + "\n\n")
	case TypeKindEnum:
		b.WriteString("enum " + t.Name + renderUses(t.Directives) + " {\n")
		for _, v := range t.EnumValues {
			renderDescription(b, v.Description, "  ")
			b.WriteString("  " + v.Name + renderDeprecation(v.IsDeprecated, v.DeprecationReason) + "\n")
		}
		b.WriteString("}\n\n")
	case TypeKindInputObject:
		b.WriteString("input " + t.Name)
		if t.OneOf {
			b.WriteString(" @oneOf")
		}
		b.WriteString(" {\n")
		for _, f := range t.InputFields {
			renderDescription(b, f.Description, "  ")
			b.WriteString("  " + renderInputValue(f) + renderDeprecation(f.IsDeprecated, f.DeprecationReason) + "\n")
		}
		b.WriteString("}\n\n")
	case TypeKindObject, TypeKindInterface:
		keyword := "type "
		if t.Kind == TypeKindInterface {
			keyword = "interface "
		}
		b.WriteString(keyword + t.Name)
		if len(t.Interfaces) > 0 {
			b.WriteString(" implements " + strings.Join(t.Interfaces, " & "))
		}
		b.WriteString(renderUses(t.Directives) + " {\n")
		for _, f := range t.Fields {
			renderField(b, f)
		}
		b.WriteString("}\n\n")
	}
}

func renderField(b *strings.Builder, f *Field) {
	renderDescription(b, f.Description, "  ")
	b.WriteString("  " + f.Name)
	if len(f.Arguments) > 0 {
		args := make([]string, len(f.Arguments))
		for i, arg := range f.Arguments {
			args[i] = renderInputValue(arg)
		}
		b.WriteString("(" + strings.Join(args, ", ") + ")")
	}
	b.WriteString(": " + f.Type.String())
	var uses []*DirectiveUse
	for _, d := range f.Directives {
		if d.Name != "deprecated" {
			uses = append(uses, d)
		}
	}
	b.WriteString(renderUses(uses) + renderDeprecation(f.IsDeprecated, f.DeprecationReason) + "\n")
}

func renderDirective(b *strings.Builder, d *Directive) {
	renderDescription(b, d.Description, "")
	b.WriteString("directive @" + d.Name)
	if len(d.Arguments) > 0 {
		args := make([]string, len(d.Arguments))
		for i, arg := range d.Arguments {
			args[i] = renderInputValue(arg)
		}
		b.WriteString("(" + strings.Join(args, ", ") + ")")
	}
	if d.IsRepeatable {
		b.WriteString(" repeatable")
	}
	b.WriteString(" on " + strings.Join(d.Locations, " | ") + "\n\n")
}

func renderInputValue(v *InputValue) string {
	out := v.Name + ": " + v.Type.String()
	if v.DefaultValue != nil {
		out += " = " + v.DefaultValue.String()
	}
	return out
}

func renderUses(uses []*DirectiveUse) string {
	var b strings.Builder
	for _, d := range uses {
		b.WriteString(" @" + d.Name)
		if len(d.Arguments) == 0 {
			continue
		}
		args := make([]string, len(d.Arguments))
		for i, arg := range d.Arguments {
			val := "null"
			if arg.Value != nil {
				val = arg.Value.String()
			}
			args[i] = arg.Name + ": " + val
		}
		b.WriteString("(" + strings.Join(args, ", ") + ")")
	}
	return b.String()
}

func renderDeprecation(deprecated bool, reason string) string {
	if !deprecated {
		return ""
	}
	if reason == "" || reason == defaultDeprecationReason {
		return " @deprecated"
	}
	return " @deprecated(reason: " + strconv.Quote(reason) + ")"
}

func renderDescription(b *strings.Builder, desc, indent string) {
	if desc == "" {
		return
	}
	b.WriteString(indent + `"""` + "\n")
	for _, line := range strings.Split(desc, "\n") {
		b.WriteString(indent + strings.ReplaceAll(line, `"""`, `\"""`) + "\n")
	}
	b.WriteString(indent + `"""` + "\n")
}
