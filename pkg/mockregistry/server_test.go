package mockregistry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shpitdev/specsynth/pkg/mockregistry"
	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/registry"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestMockRegistry_LoadDirServesVersions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "online", "TxServices_Informix_loc.response.json"), `{"type":"object"}`)
	writeFile(t, filepath.Join(dir, "bid-tools", "QuoteComponentTypes.avsc"), `{"type":"record","name":"QuoteComponentTypes","fields":[]}`)
	writeFile(t, filepath.Join(dir, "online", "cust", "1.json"), `{"title":"v1"}`)
	writeFile(t, filepath.Join(dir, "online", "cust", "2.json"), `{"title":"v2"}`)
	writeFile(t, filepath.Join(dir, "online", "README.md"), "ignored")

	srv := mockregistry.New("")
	if err := srv.LoadDir(dir); err != nil {
		t.Fatalf("load dir: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := registry.NewClient(ts.URL+"/apis/registry/v2", "", "")
	if err != nil {
		t.Fatalf("new registry client: %v", err)
	}
	ctx := context.Background()

	all, err := client.ListArtifacts(ctx, "")
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 artifacts, got %d: %+v", len(all), all)
	}
	if all[0].GroupID != "bid-tools" || all[0].Type != core.ArtifactTypeAVRO {
		t.Fatalf("expected bid-tools AVRO artifact first, got %+v", all[0])
	}

	latest, err := client.GetArtifactContent(ctx, "online", "cust", "")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest.Ref.Version != "2" || !bytes.Contains(latest.Payload, []byte("v2")) {
		t.Fatalf("unexpected latest content: version=%q payload=%s", latest.Ref.Version, latest.Payload)
	}

	_, err = client.GetArtifactContent(ctx, "online", "cust", "9")
	if !registry.IsNotFound(err) {
		t.Fatalf("expected not found for missing version, got %v", err)
	}
}

func TestMockRegistry_SpecStoreRejectsDuplicates(t *testing.T) {
	t.Parallel()

	storeDir := t.TempDir()
	srv := mockregistry.New(storeDir)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(ts.URL+"/api/v1/specs", "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("post spec: %v", err)
		}
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	body := `{"name":"loc","containerName":"locs","keyFields":["locId"],"schema":{"type":"object"}}`
	resp := post(body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created core.CreatedSpec
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID == "" || created.Version != "1" {
		t.Fatalf("unexpected created spec: %+v", created)
	}
	if _, err := os.Stat(filepath.Join(storeDir, "locs.json")); err != nil {
		t.Fatalf("expected stored spec file: %v", err)
	}

	if resp := post(body); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", resp.StatusCode)
	}
	if resp := post(`{"name":"loc"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without containerName, got %d", resp.StatusCode)
	}

	subs := srv.Submissions()
	if len(subs) != 1 || subs[0].Payload.ContainerName != "locs" {
		t.Fatalf("unexpected submissions: %+v", subs)
	}
}

func TestMockRegistry_RequiresBearerToken(t *testing.T) {
	t.Parallel()

	srv := mockregistry.New("")
	srv.RequireBearerToken("expected")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := registry.NewClient(ts.URL+"/apis/registry/v2", "other", "")
	if err != nil {
		t.Fatalf("new registry client: %v", err)
	}
	_, err = client.ListArtifacts(context.Background(), "")
	if err == nil {
		t.Fatalf("expected unauthorized error")
	}
	calls := srv.Calls()
	if len(calls) != 1 || calls[0].Method != http.MethodGet {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}
