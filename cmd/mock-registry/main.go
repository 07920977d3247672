package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/shpitdev/specsynth/pkg/mockregistry"
)

func main() {
	addr := defaultString("MOCK_REGISTRY_ADDR", ":8080")
	schemaDir := defaultString("MOCK_REGISTRY_SCHEMA_DIR", "/data/registry")
	storeDir := defaultString("MOCK_REGISTRY_STORE_DIR", "/data/specs")
	token := defaultString("MOCK_REGISTRY_TOKEN", "")

	fs := flag.NewFlagSet("mock-registry", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&schemaDir, "schema-dir", schemaDir, "Directory of <group>/<artifact>.{json,avsc} schemas to serve")
	fs.StringVar(&storeDir, "store-dir", storeDir, "Directory to persist submitted specs as <containerName>.json")
	fs.StringVar(&token, "token", token, "Require this bearer token on every request (also supports env: MOCK_REGISTRY_TOKEN)")
	_ = fs.Parse(os.Args[1:])

	srv := mockregistry.New(storeDir)
	srv.RequireBearerToken(token)
	if err := srv.LoadDir(schemaDir); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load schemas: %v\n", err)
		os.Exit(1)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-registry listening on %s (registry=%s specs=%s schemas=%s)\n",
		addr, mockregistry.RegistryPrefix, mockregistry.SpecStorePrefix+"specs", schemaDir)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
