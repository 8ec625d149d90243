package modregistry

import (
	"fmt"
	"reflect"
	"time"

	"github.com/golobby/cast"
)

// ConfigSchema declares the configuration surface of a catalog module as a
// map from field name to the expected value type. The registry core does
// not interpret module configuration beyond type coercion; deeper
// validation belongs to an external schema-validation collaborator.
//
// Supported type names: "string", "int", "int64", "float", "bool",
// "duration".
type ConfigSchema map[string]string

// ConfigValues holds coerced configuration values for one tenant module
// installation.
type ConfigValues map[string]any

var schemaTypes = map[string]reflect.Type{
	"string":   reflect.TypeOf(""),
	"int":      reflect.TypeOf(int(0)),
	"int64":    reflect.TypeOf(int64(0)),
	"float":    reflect.TypeOf(float64(0)),
	"bool":     reflect.TypeOf(false),
	"duration": reflect.TypeOf(time.Duration(0)),
}

// CoerceOverrides converts raw string overrides supplied at install time
// into typed configuration values according to the module's declared
// schema. Keys absent from the schema fail with ErrUnknownConfigKey;
// values that cannot be converted fail with ErrConfigValueInvalid. A nil
// schema accepts no overrides.
func CoerceOverrides(schema ConfigSchema, overrides map[string]string) (ConfigValues, error) {
	if len(overrides) == 0 {
		return nil, nil
	}

	values := make(ConfigValues, len(overrides))
	for key, raw := range overrides {
		typeName, declared := schema[key]
		if !declared {
			return nil, fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
		}

		target, ok := schemaTypes[typeName]
		if !ok {
			return nil, fmt.Errorf("%w: %q declares %q", ErrUnsupportedSchemaType, key, typeName)
		}

		converted, err := cast.FromType(raw, target)
		if err != nil {
			return nil, fmt.Errorf("%w: %q=%q as %s: %v", ErrConfigValueInvalid, key, raw, typeName, err)
		}
		values[key] = converted
	}

	return values, nil
}
