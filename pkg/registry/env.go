package registry

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// DefaultCacheTTL is how long a registry listing is served from cache.
const DefaultCacheTTL = 30 * time.Minute

// Env is the runtime configuration for talking to the registry and the spec store.
type Env struct {
	Services Services
	// DefaultCAPath is the path to a PEM bundle that should be trusted for TLS.
	DefaultCAPath  string
	Token          string
	SpecStoreToken string
	CacheTTL       time.Duration
	// CacheFile persists listings across runs when set.
	CacheFile string
}

// LoadEnv reads the registry environment.
//
// Required: REGISTRY_SERVICE_DISCOVERY (YAML file path) or REGISTRY_URL.
// Optional: SPEC_STORE_URL, REGISTRY_TOKEN and SPEC_STORE_TOKEN (file path or literal),
// DEFAULT_CA_PATH, REGISTRY_CACHE_TTL, REGISTRY_CACHE_FILE.
func LoadEnv() (Env, error) {
	services, err := loadServicesFromEnv()
	if err != nil {
		return Env{}, err
	}

	token, err := readSecretEnv("REGISTRY_TOKEN")
	if err != nil {
		return Env{}, err
	}
	storeToken, err := readSecretEnv("SPEC_STORE_TOKEN")
	if err != nil {
		return Env{}, err
	}
	if storeToken == "" {
		storeToken = token
	}

	ttl := DefaultCacheTTL
	if raw := strings.TrimSpace(os.Getenv("REGISTRY_CACHE_TTL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return Env{}, fmt.Errorf("REGISTRY_CACHE_TTL must be a non-negative duration (got %q)", raw)
		}
		ttl = d
	}

	return Env{
		Services:       services,
		DefaultCAPath:  strings.TrimSpace(os.Getenv("DEFAULT_CA_PATH")),
		Token:          token,
		SpecStoreToken: storeToken,
		CacheTTL:       ttl,
		CacheFile:      strings.TrimSpace(os.Getenv("REGISTRY_CACHE_FILE")),
	}, nil
}

func loadServicesFromEnv() (Services, error) {
	var services Services
	if p := strings.TrimSpace(os.Getenv("REGISTRY_SERVICE_DISCOVERY")); p != "" {
		s, err := loadServicesFromDiscoveryFile(p)
		if err != nil {
			return Services{}, err
		}
		services = s
	} else {
		reg := strings.TrimSpace(os.Getenv("REGISTRY_URL"))
		if reg == "" {
			return Services{}, fmt.Errorf("REGISTRY_SERVICE_DISCOVERY or REGISTRY_URL is required")
		}
		services.Registry = reg
	}

	// An explicit URL overrides discovery.
	if store := strings.TrimSpace(os.Getenv("SPEC_STORE_URL")); store != "" {
		services.SpecStore = store
	}
	return services, nil
}

// readSecretEnv returns the contents of the file named by varName, or the variable's
// literal value when it does not name a readable file.
func readSecretEnv(varName string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(varName))
	if raw == "" {
		return "", nil
	}
	info, err := os.Stat(raw)
	if err != nil || info.IsDir() {
		return raw, nil
	}
	b, err := os.ReadFile(raw)
	if err != nil {
		return "", fmt.Errorf("read %s file: %w", varName, err)
	}
	return strings.TrimSpace(string(b)), nil
}
