package spec

import (
	"github.com/shpitdev/specsynth/pkg/jsonschema"
	"github.com/shpitdev/specsynth/pkg/pipeline/schema"
)

// ReservedNames are system or envelope names never taken from the entity.
var ReservedNames = []string{"id", "partitionKey", "createTime", "updateTime", "metaData", "TxnType", "Txn"}

// IsReserved reports whether name is one of ReservedNames, either as written or
// once ToCamelCase has rewritten it. "CreateTime" is reserved: at submission it
// would land on the createTime system field.
func IsReserved(name string) bool {
	camel := ToCamelCase(name)
	for _, r := range ReservedNames {
		if r == name || r == camel {
			return true
		}
	}
	return false
}

// Classification is the entity's filterable field list and its property subschemas.
type Classification struct {
	AllowedFilters   []string
	EntityProperties *jsonschema.Object
}

// ClassifyFields collects the entity-level properties in declared order, minus reserved
// names. Required fields are not derived here; see RequiredFields.
func ClassifyFields(s schema.NormalizedSchema) Classification {
	out := Classification{
		AllowedFilters:   []string{},
		EntityProperties: jsonschema.NewObject(),
	}
	s.EntityProperties().Range(func(name string, value any) bool {
		if IsReserved(name) {
			return true
		}
		out.AllowedFilters = append(out.AllowedFilters, name)
		if child, ok := value.(*jsonschema.Object); ok {
			value = child.Clone()
		}
		out.EntityProperties.Set(name, value)
		return true
	})
	return out
}
