package steps

import (
	"github.com/xeipuuv/gojsonschema"
)

// validateSchema проверяет config по JSON Schema шага.
//
// Ключ в Errors: имя поля (для required: отсутствующее свойство),
// значение: описание от gojsonschema.
func validateSchema(schema map[string]any, config map[string]any) ValidationResult {
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return ValidationResult{Errors: map[string]string{"(schema)": err.Error()}}
	}
	if result.Valid() {
		return validResult()
	}

	errs := make(map[string]string, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if desc.Type() == "required" {
			if prop, ok := desc.Details()["property"].(string); ok {
				field = prop
			}
		}
		if _, exists := errs[field]; !exists {
			errs[field] = desc.Description()
		}
	}
	return ValidationResult{Errors: errs}
}

// stringOrNumber: значение, которое может прийти числом или выражением {{...}}.
var stringOrNumber = map[string]any{"type": []any{"number", "string"}}

// stringOrBool: значение, которое может прийти bool или выражением {{...}}.
var stringOrBool = map[string]any{"type": []any{"boolean", "string"}}

// objectSchema собирает схему объекта.
func objectSchema(required []string, properties map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, r := range required {
			req[i] = r
		}
		schema["required"] = req
	}
	return schema
}
