package execution

import (
	"fmt"
	"strings"

	language "github.com/hanpama/entityql/internal/language"
	schema "github.com/hanpama/entityql/internal/schema"
	value "github.com/hanpama/entityql/internal/value"
)

// coerceVariableValues coerces variable values according to their types.
// Variables that are neither provided nor defaulted are left out so that
// argument defaults apply to them.
func coerceVariableValues(
	s *schema.Schema,
	operation *language.OperationDefinition,
	variableValues map[string]any,
) (map[string]value.Value, error) {
	coerced := make(map[string]value.Value, len(operation.VariableDefinitions))
	for _, varDef := range operation.VariableDefinitions {
		name := varDef.Variable
		t := varDef.Type
		val, ok := variableValues[name]
		if !ok {
			val, ok = variableValues[strings.TrimPrefix(name, "$")]
		}
		if !ok {
			if varDef.DefaultValue != nil {
				coerced[name] = value.FromAST(varDef.DefaultValue, nil)
			} else if t.NonNull {
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, t.String())
			}
			continue
		}
		if val == nil && t.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, t.String())
		}
		cv, err := value.FromJSON(val, typeRefFromAST(t), s)
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s cannot be coerced: %v", name, t.String(), err)
		}
		coerced[name] = cv
	}
	return coerced, nil
}

func typeRefFromAST(t *language.Type) *schema.TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return schema.NonNullType(typeRefFromAST(&language.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return schema.NamedType(t.NamedType)
	}
	if t.Elem != nil {
		return schema.ListType(typeRefFromAST(t.Elem))
	}
	return nil
}
