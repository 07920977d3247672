package spec

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Convention is a registry group's naming rule.
type Convention int

const (
	// ConventionDefault treats the artifact base name as already plural.
	ConventionDefault Convention = iota
	// ConventionOnline treats the base name as singular and appends "s".
	ConventionOnline
	// ConventionBidTools strips a vendor prefix, then behaves like ConventionDefault.
	ConventionBidTools
)

func (c Convention) String() string {
	switch c {
	case ConventionOnline:
		return "online"
	case ConventionBidTools:
		return "bid-tools"
	default:
		return "default"
	}
}

// ParseConvention maps a config name onto a Convention.
func ParseConvention(raw string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "online":
		return ConventionOnline, nil
	case "bid-tools", "bidtools":
		return ConventionBidTools, nil
	case "default", "":
		return ConventionDefault, nil
	default:
		return ConventionDefault, fmt.Errorf("unknown naming convention %q", raw)
	}
}

// NamingResult is the logical spec name and its storage container name.
type NamingResult struct {
	SpecName      string
	ContainerName string
}

// Conventions holds the group -> convention table and the name-stripping rules.
type Conventions struct {
	// Groups maps an exact registry group id onto its convention.
	Groups map[string]Convention
	// Prefixes are database-origin markers stripped from artifact ids.
	Prefixes []string
	// Suffixes are message-direction markers stripped from artifact ids.
	Suffixes []string
	// VendorPrefixes are stripped only under ConventionBidTools.
	VendorPrefixes []string
	// PinnedVersions lists conventions whose artifacts are always selected at an explicit version.
	PinnedVersions []Convention
}

// Default group ids.
const (
	OnlineGroupID   = "online"
	BidToolsGroupID = "bid-tools"
)

// DefaultConventions returns the built-in naming rules.
func DefaultConventions() Conventions {
	return Conventions{
		Groups: map[string]Convention{
			OnlineGroupID:   ConventionOnline,
			BidToolsGroupID: ConventionBidTools,
		},
		Prefixes: []string{
			"TxServices_Informix_",
			"TxServices_Oracle_",
			"TxServices_SqlServer_",
			"TxServices_Db2_",
			"TxServices_",
		},
		Suffixes:       []string{".response", ".request"},
		VendorPrefixes: []string{"BidTools_", "BidTools."},
		PinnedVersions: []Convention{ConventionOnline},
	}
}

// ConventionFor returns the convention of groupID. Matching is exact; unknown groups
// use ConventionDefault.
func (c Conventions) ConventionFor(groupID string) Convention {
	if conv, ok := c.Groups[groupID]; ok {
		return conv
	}
	return ConventionDefault
}

// PinsVersion reports whether artifacts of groupID are selected at an explicit version.
func (c Conventions) PinsVersion(groupID string) bool {
	return slices.Contains(c.PinnedVersions, c.ConventionFor(groupID))
}

// BaseName strips known prefixes and suffixes from artifactID.
func (c Conventions) BaseName(artifactID string, conv Convention) string {
	base := strings.TrimSpace(artifactID)
	if conv == ConventionBidTools {
		base = stripFirstPrefix(base, c.VendorPrefixes)
	}
	base = stripFirstPrefix(base, c.Prefixes)
	for _, suffix := range c.Suffixes {
		if suffix != "" && strings.HasSuffix(base, suffix) && len(base) > len(suffix) {
			base = strings.TrimSuffix(base, suffix)
			break
		}
	}
	return base
}

// Resolve derives the spec and container names for an artifact.
//
// Pluralization is a fixed one-letter rule: irregular plurals are not handled.
func (c Conventions) Resolve(artifactID, groupID string) NamingResult {
	conv := c.ConventionFor(groupID)
	base := c.BaseName(artifactID, conv)

	switch conv {
	case ConventionOnline:
		if base == "" {
			return NamingResult{}
		}
		return NamingResult{SpecName: base, ContainerName: base + "s"}
	default:
		specName := base
		if len(base) > 1 {
			specName = strings.TrimSuffix(base, "s")
		}
		return NamingResult{SpecName: specName, ContainerName: base}
	}
}

// ResolveNaming resolves names with the built-in conventions.
func ResolveNaming(artifactID, groupID string) NamingResult {
	return DefaultConventions().Resolve(artifactID, groupID)
}

// stripFirstPrefix removes the longest matching prefix, leaving at least one character.
func stripFirstPrefix(s string, prefixes []string) string {
	best := ""
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) && len(s) > len(p) && len(p) > len(best) {
			best = p
		}
	}
	return strings.TrimPrefix(s, best)
}

// conventionsFile is the YAML layout of a conventions override file.
//
// Example:
//
//	groups:
//	  online: online
//	  com.example.bid: bid-tools
//	prefixes: [TxServices_Informix_, TxServices_]
//	suffixes: [.response, .request]
//	vendorPrefixes: [BidTools_]
//	pinnedVersions: [online]
type conventionsFile struct {
	Groups         map[string]string `yaml:"groups"`
	Prefixes       []string          `yaml:"prefixes"`
	Suffixes       []string          `yaml:"suffixes"`
	VendorPrefixes []string          `yaml:"vendorPrefixes"`
	PinnedVersions []string          `yaml:"pinnedVersions"`
}

// LoadConventions reads a YAML conventions file. Sections omitted from the file keep
// their built-in defaults.
func LoadConventions(path string) (Conventions, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultConventions(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Conventions{}, fmt.Errorf("read conventions file: %w", err)
	}
	return ParseConventions(b)
}

// ParseConventions parses YAML conventions over the built-in defaults.
func ParseConventions(b []byte) (Conventions, error) {
	var raw conventionsFile
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return Conventions{}, fmt.Errorf("parse conventions YAML: %w", err)
	}

	out := DefaultConventions()
	if raw.Groups != nil {
		out.Groups = make(map[string]Convention, len(raw.Groups))
		for group, name := range raw.Groups {
			conv, err := ParseConvention(name)
			if err != nil {
				return Conventions{}, fmt.Errorf("group %q: %w", group, err)
			}
			out.Groups[strings.TrimSpace(group)] = conv
		}
	}
	if raw.Prefixes != nil {
		out.Prefixes = raw.Prefixes
	}
	if raw.Suffixes != nil {
		out.Suffixes = raw.Suffixes
	}
	if raw.VendorPrefixes != nil {
		out.VendorPrefixes = raw.VendorPrefixes
	}
	if raw.PinnedVersions != nil {
		out.PinnedVersions = nil
		for _, name := range raw.PinnedVersions {
			conv, err := ParseConvention(name)
			if err != nil {
				return Conventions{}, fmt.Errorf("pinnedVersions: %w", err)
			}
			out.PinnedVersions = append(out.PinnedVersions, conv)
		}
	}
	return out, nil
}
