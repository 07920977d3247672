package local

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

// ReadArtifactRefsCSV reads a batch manifest. The header must name an "artifactId"
// column; "groupId", "version" and "artifactType" are optional. Blank rows are skipped.
func ReadArtifactRefsCSV(r io.Reader) ([]core.ArtifactRef, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, col := range header {
		key := strings.ToLower(strings.TrimSpace(col))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	artifactIdx, ok := cols["artifactid"]
	if !ok {
		return nil, fmt.Errorf("missing required column %q", "artifactId")
	}
	cell := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var refs []core.ArtifactRef
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if artifactIdx >= len(rec) || strings.TrimSpace(rec[artifactIdx]) == "" {
			if strings.TrimSpace(strings.Join(rec, "")) == "" {
				continue
			}
			return nil, fmt.Errorf("line %d: artifactId is empty", line)
		}
		refs = append(refs, core.ArtifactRef{
			GroupID:      cell(rec, "groupid"),
			ArtifactID:   cell(rec, "artifactid"),
			ArtifactType: core.NormalizeArtifactType(cell(rec, "artifacttype")),
			Version:      cell(rec, "version"),
		})
	}
	return refs, nil
}
