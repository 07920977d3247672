package schema

import (
	"strings"

	"github.com/shpitdev/specsynth/pkg/jsonschema"
)

// avroNames tracks named types (records, enums, fixed) so later references resolve.
type avroNames map[string]*jsonschema.Object

func newAvroNames() avroNames {
	return make(avroNames)
}

func (n avroNames) define(def *jsonschema.Object, converted *jsonschema.Object) {
	name, _ := def.String("name")
	if name == "" {
		return
	}
	n[name] = converted
	if i := strings.LastIndex(name, "."); i >= 0 {
		n[name[i+1:]] = converted
	}
	if ns, _ := def.String("namespace"); ns != "" && !strings.Contains(name, ".") {
		n[ns+"."+name] = converted
	}
}

func avroRecordToSchema(rec *jsonschema.Object, names avroNames) *jsonschema.Object {
	out := jsonschema.NewObject()
	out.Set("type", "object")
	if name, _ := rec.String("name"); name != "" {
		out.Set("title", name)
	}
	if doc, _ := rec.String("doc"); doc != "" {
		out.Set("description", doc)
	}
	props := jsonschema.NewObject()
	out.Set("properties", props)
	names.define(rec, out)

	var required []any
	fields, _ := rec.Get("fields")
	list, _ := fields.([]any)
	for _, f := range list {
		field, ok := f.(*jsonschema.Object)
		if !ok {
			continue
		}
		name, _ := field.String("name")
		if name == "" {
			continue
		}
		typ, _ := field.Get("type")
		prop, nullable := avroTypeToSchema(typ, names)
		if doc, _ := field.String("doc"); doc != "" {
			prop.Set("description", doc)
		}
		def, hasDefault := field.Get("default")
		if hasDefault {
			prop.Set("default", def)
		}
		props.Set(name, prop)
		if !nullable && !hasDefault {
			required = append(required, name)
		}
	}
	if len(required) > 0 {
		out.Set("required", required)
	}
	return out
}

// avroTypeToSchema maps an Avro type to a best-effort JSON-Schema subschema and reports
// whether the type admits null.
func avroTypeToSchema(t any, names avroNames) (*jsonschema.Object, bool) {
	switch v := t.(type) {
	case string:
		return avroNamedOrPrimitive(v, names), v == "null"
	case []any:
		return avroUnion(v, names)
	case *jsonschema.Object:
		return avroComplex(v, names), false
	default:
		return jsonschema.NewObject(), false
	}
}

func avroNamedOrPrimitive(name string, names avroNames) *jsonschema.Object {
	if typ, ok := primitiveJSONType(name); ok {
		return jsonschema.NewObject().Set("type", typ)
	}
	if def, ok := names[name]; ok {
		return def.Clone()
	}
	return jsonschema.NewObject().Set("type", "object")
}

func primitiveJSONType(name string) (string, bool) {
	switch strings.TrimSpace(name) {
	case "string", "bytes":
		return "string", true
	case "int", "long":
		return "integer", true
	case "float", "double":
		return "number", true
	case "boolean":
		return "boolean", true
	case "null":
		return "null", true
	default:
		return "", false
	}
}

func avroUnion(branches []any, names avroNames) (*jsonschema.Object, bool) {
	hasNull := false
	var first any
	found := false
	for _, b := range branches {
		if s, ok := b.(string); ok && s == "null" {
			hasNull = true
			continue
		}
		if !found {
			first = b
			found = true
		}
	}
	if !found {
		return jsonschema.NewObject().Set("type", "null"), true
	}
	out, _ := avroTypeToSchema(first, names)
	if hasNull {
		if typ, ok := out.String("type"); ok && typ != "" {
			out.Set("type", []any{typ, "null"})
		}
	}
	return out, hasNull
}

func avroComplex(def *jsonschema.Object, names avroNames) *jsonschema.Object {
	if logical, _ := def.String("logicalType"); logical != "" {
		if out, ok := avroLogical(logical); ok {
			return out
		}
	}

	typ, _ := def.Get("type")
	name, _ := typ.(string)
	switch name {
	case "record", "error":
		return avroRecordToSchema(def, names)
	case "enum":
		out := jsonschema.NewObject().Set("type", "string")
		symbols := def.Strings("symbols")
		enum := make([]any, 0, len(symbols))
		for _, s := range symbols {
			enum = append(enum, s)
		}
		out.Set("enum", enum)
		names.define(def, out)
		return out
	case "array":
		items, _ := def.Get("items")
		itemSchema, _ := avroTypeToSchema(items, names)
		return jsonschema.NewObject().Set("type", "array").Set("items", itemSchema)
	case "map":
		values, _ := def.Get("values")
		valueSchema, _ := avroTypeToSchema(values, names)
		return jsonschema.NewObject().Set("type", "object").Set("additionalProperties", valueSchema)
	case "fixed":
		out := jsonschema.NewObject().Set("type", "string")
		names.define(def, out)
		return out
	}
	out, _ := avroTypeToSchema(typ, names)
	return out
}

func avroLogical(logical string) (*jsonschema.Object, bool) {
	switch logical {
	case "timestamp-millis", "timestamp-micros", "local-timestamp-millis", "local-timestamp-micros":
		return jsonschema.NewObject().Set("type", "string").Set("format", "date-time"), true
	case "date":
		return jsonschema.NewObject().Set("type", "string").Set("format", "date"), true
	case "time-millis", "time-micros":
		return jsonschema.NewObject().Set("type", "string").Set("format", "time"), true
	case "uuid":
		return jsonschema.NewObject().Set("type", "string").Set("format", "uuid"), true
	case "decimal":
		return jsonschema.NewObject().Set("type", "number"), true
	default:
		return nil, false
	}
}
