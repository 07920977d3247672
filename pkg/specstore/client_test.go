package specstore_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/specsynth/pkg/jsonschema"
	"github.com/shpitdev/specsynth/pkg/mockregistry"
	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/registry"
	"github.com/shpitdev/specsynth/pkg/specstore"
)

func payload(container string) core.SubmissionPayload {
	return core.SubmissionPayload{
		Name:           "loc",
		ContainerName:  container,
		KeyFields:      []string{"locId"},
		RequiredFields: []string{"locId"},
		AllowedFilters: []string{"locId"},
		PartitionKey:   core.PartitionKey{Field: "partitionKey", Value: "loc"},
		Schema:         jsonschema.NewObject().Set("type", "object"),
	}
}

func TestCreateSpec_ConflictIsDistinct(t *testing.T) {
	storeDir := t.TempDir()
	srv := mockregistry.New(storeDir)
	srv.RequireBearerToken("store-token")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := specstore.NewClient(ts.URL+"/api/v1", "store-token", "")
	require.NoError(t, err)

	created, err := client.CreateSpec(context.Background(), payload("locs"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "1", created.Version)

	_, err = os.Stat(filepath.Join(storeDir, "locs.json"))
	require.NoError(t, err)

	_, err = client.CreateSpec(context.Background(), payload("locs"))
	require.Error(t, err)
	assert.True(t, core.IsConflict(err))

	var he *registry.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusConflict, he.StatusCode)
	assert.Equal(t, "SpecAlreadyExistsException", he.ErrorName)

	require.Len(t, srv.Submissions(), 1)
	assert.Equal(t, []string{"locId"}, srv.Submissions()[0].Payload.KeyFields)
}

func TestCreateSpec_GenericFailure(t *testing.T) {
	srv := mockregistry.New("")
	srv.RequireBearerToken("right")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := specstore.NewClient(ts.URL+"/api/v1", "wrong", "")
	require.NoError(t, err)

	_, err = client.CreateSpec(context.Background(), payload("locs"))
	require.Error(t, err)
	assert.False(t, core.IsConflict(err))

	var he *registry.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.StatusCode)
	assert.Contains(t, err.Error(), "spec store api error")
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := specstore.NewClient(" ", "", "")
	assert.ErrorContains(t, err, "spec store base URL is required")
}
