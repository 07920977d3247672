package template

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
	"github.com/shpitdev/specsynth/pkg/pipeline/spec"
)

// ArtifactGroup is one registry group and its artifacts.
type ArtifactGroup struct {
	GroupID   string
	Artifacts []core.ArtifactDescriptor
}

// GroupArtifacts buckets a registry listing by group. Groups and the artifacts within
// each group are sorted by id; descriptors without an artifact id are skipped.
func GroupArtifacts(items []core.ArtifactDescriptor) []ArtifactGroup {
	byGroup := make(map[string][]core.ArtifactDescriptor)
	for _, it := range items {
		if strings.TrimSpace(it.ArtifactID) == "" {
			continue
		}
		byGroup[it.GroupID] = append(byGroup[it.GroupID], it)
	}

	out := make([]ArtifactGroup, 0, len(byGroup))
	for g, arts := range byGroup {
		sort.SliceStable(arts, func(i, j int) bool { return arts[i].ArtifactID < arts[j].ArtifactID })
		out = append(out, ArtifactGroup{GroupID: g, Artifacts: arts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

// Selector resolves artifact identities against a grouped listing.
type Selector struct {
	Conventions spec.Conventions
}

// SelectArtifact resolves groupID/artifactID to an ArtifactRef. The version is pinned
// from the listing when the group's convention requires it, and left empty (latest)
// otherwise.
func (s Selector) SelectArtifact(groups []ArtifactGroup, groupID, artifactID string) (core.ArtifactRef, error) {
	groupID = strings.TrimSpace(groupID)
	artifactID = strings.TrimSpace(artifactID)
	if artifactID == "" {
		return core.ArtifactRef{}, &core.ValidationError{Field: "artifactId", Reason: "required"}
	}

	for _, g := range groups {
		if g.GroupID != groupID {
			continue
		}
		for _, a := range g.Artifacts {
			if a.ArtifactID != artifactID {
				continue
			}
			ref := core.ArtifactRef{
				GroupID:      a.GroupID,
				ArtifactID:   a.ArtifactID,
				ArtifactType: core.NormalizeArtifactType(string(a.Type)),
			}
			if s.Conventions.PinsVersion(a.GroupID) {
				if strings.TrimSpace(a.LatestVersion) == "" {
					return core.ArtifactRef{}, &core.ValidationError{
						Field:  "version",
						Reason: fmt.Sprintf("group %q requires an explicit version but the listing has none", a.GroupID),
					}
				}
				ref.Version = strings.TrimSpace(a.LatestVersion)
			}
			return ref, nil
		}
	}
	return core.ArtifactRef{}, &core.ValidationError{
		Field:  "artifactId",
		Reason: fmt.Sprintf("artifact %s/%s not found in listing", groupID, artifactID),
	}
}

// SelectArtifact resolves with the built-in conventions.
func SelectArtifact(groups []ArtifactGroup, groupID, artifactID string) (core.ArtifactRef, error) {
	return Selector{Conventions: spec.DefaultConventions()}.SelectArtifact(groups, groupID, artifactID)
}
