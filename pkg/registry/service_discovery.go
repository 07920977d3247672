package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// serviceDiscovery maps each service id to a list whose first element is its base URL.
//
// Example (YAML):
//
//	schema_registry:
//	  - https://registry.example.com/apis/registry/v2
//	spec_store:
//	  - https://specs.example.com/api/v1
type serviceDiscovery map[string][]string

// Services are the discovered base URLs. SpecStore is empty when not configured.
type Services struct {
	Registry  string
	SpecStore string
}

func loadServicesFromDiscoveryFile(path string) (Services, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Services{}, fmt.Errorf("REGISTRY_SERVICE_DISCOVERY is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Services{}, fmt.Errorf("read REGISTRY_SERVICE_DISCOVERY file: %w", err)
	}

	var raw serviceDiscovery
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return Services{}, fmt.Errorf("parse REGISTRY_SERVICE_DISCOVERY YAML: %w", err)
	}

	getOne := func(keys ...string) (string, bool) {
		for _, key := range keys {
			vals, ok := raw[key]
			if !ok || len(vals) == 0 {
				continue
			}
			if v := strings.TrimSpace(vals[0]); v != "" {
				return v, true
			}
		}
		return "", false
	}

	reg, ok := getOne("schema_registry", "registry")
	if !ok {
		return Services{}, fmt.Errorf("REGISTRY_SERVICE_DISCOVERY missing schema_registry")
	}
	store, _ := getOne("spec_store")

	return Services{
		Registry:  reg,
		SpecStore: store,
	}, nil
}
