package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

// ErrArtifactNotFound is returned by DirSource for unknown artifacts or versions.
var ErrArtifactNotFound = errors.New("artifact not found")

// DirSource serves schema files from a directory laid out like a registry export:
// <root>/<group>/<artifact>.json or .avsc for a single version, or
// <root>/<group>/<artifact>/<version>.json|.avsc for several. Versions sort lexically.
type DirSource struct {
	root string
}

func NewDirSource(root string) (*DirSource, error) {
	root = strings.TrimSpace(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("schema dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema dir %s is not a directory", root)
	}
	return &DirSource{root: root}, nil
}

type dirVersion struct {
	version string
	path    string
	typ     core.ArtifactType
}

func (s *DirSource) ListArtifacts(ctx context.Context, groupFilter string) ([]core.ArtifactDescriptor, error) {
	groupFilter = strings.TrimSpace(groupFilter)
	groups, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}

	var out []core.ArtifactDescriptor
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !g.IsDir() || strings.HasPrefix(g.Name(), ".") {
			continue
		}
		if groupFilter != "" && g.Name() != groupFilter {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.root, g.Name()))
		if err != nil {
			return nil, fmt.Errorf("read group dir %s: %w", g.Name(), err)
		}
		seen := map[string]bool{}
		for _, e := range entries {
			id := e.Name()
			if !e.IsDir() {
				var ok bool
				if id, _, ok = splitSchemaFile(id); !ok {
					continue
				}
			}
			if seen[id] {
				continue
			}
			versions, err := s.versions(g.Name(), id)
			if err != nil {
				return nil, err
			}
			if len(versions) == 0 {
				continue
			}
			seen[id] = true
			latest := versions[len(versions)-1]
			out = append(out, core.ArtifactDescriptor{
				GroupID:       g.Name(),
				ArtifactID:    id,
				Type:          latest.typ,
				Name:          id,
				LatestVersion: latest.version,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}
		return out[i].ArtifactID < out[j].ArtifactID
	})
	return out, nil
}

func (s *DirSource) GetArtifactContent(ctx context.Context, groupID, artifactID, version string) (core.ArtifactContent, error) {
	if err := ctx.Err(); err != nil {
		return core.ArtifactContent{}, err
	}
	groupID = strings.TrimSpace(groupID)
	artifactID = strings.TrimSpace(artifactID)
	version = strings.TrimSpace(version)
	if groupID == "" {
		groupID = "default"
	}
	if !safeName(groupID) || !safeName(artifactID) {
		return core.ArtifactContent{}, fmt.Errorf("invalid artifact reference %s/%s", groupID, artifactID)
	}

	versions, err := s.versions(groupID, artifactID)
	if err != nil {
		return core.ArtifactContent{}, err
	}
	if len(versions) == 0 {
		return core.ArtifactContent{}, fmt.Errorf("%s/%s: %w", groupID, artifactID, ErrArtifactNotFound)
	}
	picked := versions[len(versions)-1]
	if version != "" {
		found := false
		for _, v := range versions {
			if v.version == version {
				picked, found = v, true
				break
			}
		}
		if !found {
			return core.ArtifactContent{}, fmt.Errorf("%s/%s@%s: %w", groupID, artifactID, version, ErrArtifactNotFound)
		}
	}

	b, err := os.ReadFile(picked.path)
	if err != nil {
		return core.ArtifactContent{}, fmt.Errorf("read schema %s: %w", picked.path, err)
	}
	return core.ArtifactContent{
		Ref: core.ArtifactRef{
			GroupID:      groupID,
			ArtifactID:   artifactID,
			ArtifactType: picked.typ,
			Version:      picked.version,
		},
		Payload: b,
	}, nil
}

// versions lists an artifact's files. A single-file artifact has version "1".
func (s *DirSource) versions(groupID, artifactID string) ([]dirVersion, error) {
	groupDir := filepath.Join(s.root, groupID)
	for _, ext := range []string{".json", ".avsc"} {
		p := filepath.Join(groupDir, artifactID+ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			_, typ, _ := splitSchemaFile(artifactID + ext)
			return []dirVersion{{version: "1", path: p, typ: typ}}, nil
		}
	}

	dir := filepath.Join(groupDir, artifactID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read versions of %s/%s: %w", groupID, artifactID, err)
	}
	var out []dirVersion
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		v, typ, ok := splitSchemaFile(e.Name())
		if !ok {
			continue
		}
		out = append(out, dirVersion{version: v, path: filepath.Join(dir, e.Name()), typ: typ})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func splitSchemaFile(name string) (string, core.ArtifactType, bool) {
	switch ext := filepath.Ext(name); ext {
	case ".json":
		return strings.TrimSuffix(name, ext), core.ArtifactTypeJSON, true
	case ".avsc":
		return strings.TrimSuffix(name, ext), core.ArtifactTypeAVRO, true
	default:
		return "", "", false
	}
}

func safeName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// WritePayloadFile writes payload as indented JSON to dir/<containerName>.json and
// returns the path. Existing files are not overwritten.
func WritePayloadFile(dir string, payload core.SubmissionPayload) (string, error) {
	name := strings.TrimSpace(payload.ContainerName)
	if !safeName(name) {
		return "", &core.ValidationError{Field: "containerName", Reason: "not usable as a file name"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode spec payload: %w", err)
	}
	path := filepath.Join(dir, name+".json")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", &core.ConflictError{Name: name, Err: err}
		}
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}
