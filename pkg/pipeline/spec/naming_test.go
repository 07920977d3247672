package spec_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/specsynth/pkg/pipeline/spec"
)

func TestResolveNaming(t *testing.T) {
	tests := []struct {
		name       string
		artifactID string
		groupID    string
		want       spec.NamingResult
	}{
		{
			name:       "online strips db prefix and response suffix",
			artifactID: "TxServices_Informix_loc.response",
			groupID:    spec.OnlineGroupID,
			want:       spec.NamingResult{SpecName: "loc", ContainerName: "locs"},
		},
		{
			name:       "online keeps trailing s",
			artifactID: "TxServices_Informix_address.request",
			groupID:    spec.OnlineGroupID,
			want:       spec.NamingResult{SpecName: "address", ContainerName: "addresss"},
		},
		{
			name:       "bid tools singularizes",
			artifactID: "QuoteComponentTypes",
			groupID:    spec.BidToolsGroupID,
			want:       spec.NamingResult{SpecName: "QuoteComponentType", ContainerName: "QuoteComponentTypes"},
		},
		{
			name:       "bid tools strips vendor prefix",
			artifactID: "BidTools_Quotes",
			groupID:    spec.BidToolsGroupID,
			want:       spec.NamingResult{SpecName: "Quote", ContainerName: "Quotes"},
		},
		{
			name:       "vendor prefix kept outside bid tools",
			artifactID: "BidTools_Quotes",
			groupID:    "warehouse",
			want:       spec.NamingResult{SpecName: "BidTools_Quote", ContainerName: "BidTools_Quotes"},
		},
		{
			name:       "unknown group without trailing s",
			artifactID: "Inventory",
			groupID:    "warehouse",
			want:       spec.NamingResult{SpecName: "Inventory", ContainerName: "Inventory"},
		},
		{
			name:       "group match is exact",
			artifactID: "Orders",
			groupID:    "Online",
			want:       spec.NamingResult{SpecName: "Order", ContainerName: "Orders"},
		},
		{
			name:       "only one s removed",
			artifactID: "Classes",
			groupID:    "",
			want:       spec.NamingResult{SpecName: "Classe", ContainerName: "Classes"},
		},
		{
			name:       "generic TxServices prefix",
			artifactID: "TxServices_cust.response",
			groupID:    spec.OnlineGroupID,
			want:       spec.NamingResult{SpecName: "cust", ContainerName: "custs"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, spec.ResolveNaming(tt.artifactID, tt.groupID))
		})
	}
}

func TestResolveNaming_ConventionProperties(t *testing.T) {
	ids := []string{"loc", "Orders", "TxServices_Informix_ship.response", "Bus", "a", "Status"}
	for _, id := range ids {
		online := spec.ResolveNaming(id, spec.OnlineGroupID)
		assert.Equal(t, online.SpecName+"s", online.ContainerName, id)

		def := spec.ResolveNaming(id, "anything")
		assert.True(t, def.SpecName == def.ContainerName || def.SpecName+"s" == def.ContainerName, id)
		assert.False(t, strings.HasSuffix(def.ContainerName, "s") && def.SpecName == def.ContainerName && len(def.ContainerName) > 1, id)
	}
}

func TestConventions_PinsVersion(t *testing.T) {
	c := spec.DefaultConventions()
	assert.True(t, c.PinsVersion(spec.OnlineGroupID))
	assert.False(t, c.PinsVersion(spec.BidToolsGroupID))
	assert.False(t, c.PinsVersion("other"))
}

func TestLoadConventions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conventions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
groups:
  com.example.online: online
  com.example.bid: bid-tools
vendorPrefixes: [Acme_]
pinnedVersions: [bid-tools]
`), 0o644))

	c, err := spec.LoadConventions(path)
	require.NoError(t, err)

	assert.Equal(t, spec.ConventionOnline, c.ConventionFor("com.example.online"))
	assert.Equal(t, spec.ConventionDefault, c.ConventionFor(spec.OnlineGroupID))
	assert.Equal(t, spec.NamingResult{SpecName: "Widget", ContainerName: "Widgets"}, c.Resolve("Acme_Widgets", "com.example.bid"))
	assert.True(t, c.PinsVersion("com.example.bid"))
	assert.False(t, c.PinsVersion("com.example.online"))
	assert.Equal(t, spec.DefaultConventions().Prefixes, c.Prefixes)
}

func TestLoadConventions_Errors(t *testing.T) {
	_, err := spec.ParseConventions([]byte("groups:\n  g: sideways\n"))
	assert.ErrorContains(t, err, "unknown naming convention")

	_, err = spec.ParseConventions([]byte("groups: [unclosed"))
	assert.ErrorContains(t, err, "parse conventions YAML")

	_, err = spec.LoadConventions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read conventions file")

	c, err := spec.LoadConventions("")
	require.NoError(t, err)
	assert.Equal(t, spec.DefaultConventions().Suffixes, c.Suffixes)
}
