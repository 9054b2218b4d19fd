package llmgateway

import "fmt"

// validateAgainstSchema is a minimal structural check against a JSON-schema
// subset: object "type"/"properties"/"required" and array "items", enough
// to catch a model ignoring the schema shape. It is intentionally not a
// full JSON-schema implementation — the schema here is a contract the
// gateway authors control, not arbitrary third-party schemas.
func validateAgainstSchema(value any, schema map[string]any) error {
	return validateNode(value, schema, "$")
}

func validateNode(value any, schema map[string]any, path string) error {
	schemaType, _ := schema["type"].(string)
	switch schemaType {
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: expected object", path)
		}
		required, _ := schema["required"].([]any)
		for _, r := range required {
			key, _ := r.(string)
			if _, present := obj[key]; !present {
				return fmt.Errorf("%s: missing required field %q", path, key)
			}
		}
		props, _ := schema["properties"].(map[string]any)
		for key, sub := range props {
			v, present := obj[key]
			if !present {
				continue
			}
			subSchema, ok := sub.(map[string]any)
			if !ok {
				continue
			}
			if err := validateNode(v, subSchema, path+"."+key); err != nil {
				return err
			}
		}
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array", path)
		}
		itemSchema, _ := schema["items"].(map[string]any)
		if itemSchema != nil {
			for i, item := range arr {
				if err := validateNode(item, itemSchema, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s: expected string", path)
		}
	case "integer", "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("%s: expected number", path)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected boolean", path)
		}
	}
	return nil
}
