package mockregistry

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shpitdev/specsynth/pkg/pipeline/core"
)

// RegistryPrefix is the base path of the registry API.
const RegistryPrefix = "/apis/registry/v2/"

// SpecStorePrefix is the base path of the spec store API.
const SpecStorePrefix = "/api/v1/"

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
	Query  string
}

// Artifact is one registered schema with its versions in registration order.
type Artifact struct {
	GroupID     string
	ArtifactID  string
	Type        core.ArtifactType
	Name        string
	Description string
	Versions    []Version
}

// Version is one stored revision of an artifact.
type Version struct {
	Version string
	Payload []byte
}

// Submission records a spec accepted by the spec store.
type Submission struct {
	ID      string
	Payload core.SubmissionPayload
}

// Server implements a minimal schema registry plus spec store surface.
type Server struct {
	storeDir string

	mu        sync.Mutex
	calls     []Call
	artifacts map[string]*Artifact
	specs     map[string]Submission
	order     []string

	expectedAuthorization string
}

// New constructs a mock server. When storeDir is set, accepted specs are also written
// there as <containerName>.json.
func New(storeDir string) *Server {
	return &Server{
		storeDir:  storeDir,
		artifacts: make(map[string]*Artifact),
		specs:     make(map[string]Submission),
	}
}

// RequireBearerToken enforces that requests include an Authorization header matching the token.
// If token is empty, authorization is not enforced.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		s.expectedAuthorization = ""
		return
	}
	s.expectedAuthorization = "Bearer " + token
}

// AddArtifact registers a new version of an artifact. Versions are numbered from 1.
func (s *Server) AddArtifact(groupID, artifactID string, typ core.ArtifactType, payload []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := groupID + "/" + artifactID
	a, ok := s.artifacts[key]
	if !ok {
		a = &Artifact{GroupID: groupID, ArtifactID: artifactID, Type: typ, Name: artifactID}
		s.artifacts[key] = a
	}
	if typ != "" {
		a.Type = typ
	}
	v := strconv.Itoa(len(a.Versions) + 1)
	a.Versions = append(a.Versions, Version{Version: v, Payload: append([]byte(nil), payload...)})
	return v
}

// LoadDir registers every schema file under dir laid out as <group>/<artifact>.json
// (JSON schema) or <group>/<artifact>.avsc (AVRO). A <group>/<artifact>/ directory of
// files named by version registers each version in lexical order.
func (s *Server) LoadDir(dir string) error {
	groups, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	for _, g := range groups {
		if !g.IsDir() || strings.HasPrefix(g.Name(), ".") {
			continue
		}
		groupDir := filepath.Join(dir, g.Name())
		entries, err := os.ReadDir(groupDir)
		if err != nil {
			return fmt.Errorf("read group dir %s: %w", g.Name(), err)
		}
		for _, e := range entries {
			if e.IsDir() {
				if err := s.loadVersionDir(g.Name(), e.Name(), filepath.Join(groupDir, e.Name())); err != nil {
					return err
				}
				continue
			}
			id, typ, ok := splitSchemaFile(e.Name())
			if !ok {
				continue
			}
			b, err := os.ReadFile(filepath.Join(groupDir, e.Name()))
			if err != nil {
				return fmt.Errorf("read schema %s/%s: %w", g.Name(), e.Name(), err)
			}
			s.AddArtifact(g.Name(), id, typ, b)
		}
	}
	return nil
}

func (s *Server) loadVersionDir(groupID, artifactID, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read versions of %s/%s: %w", groupID, artifactID, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		_, typ, ok := splitSchemaFile(name)
		if !ok {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read schema %s/%s/%s: %w", groupID, artifactID, name, err)
		}
		s.AddArtifact(groupID, artifactID, typ, b)
	}
	return nil
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

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(RegistryPrefix, s.handleRegistry)
	mux.HandleFunc(SpecStorePrefix+"specs", s.handleSpecs)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Submissions returns the accepted specs in submission order.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Submission, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.specs[name])
	}
	return out
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := s.expectedAuthorization
	s.mu.Unlock()

	if expected == "" {
		return true
	}
	if r.Header.Get("Authorization") != expected {
		writeError(w, http.StatusUnauthorized, "NotAuthorizedException", "unauthorized")
		return false
	}
	return true
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowedException", "method not allowed")
		return
	}

	// search/artifacts
	// groups/{group}/artifacts/{artifact}
	// groups/{group}/artifacts/{artifact}/versions
	// groups/{group}/artifacts/{artifact}/versions/{version}
	rest := strings.TrimPrefix(r.URL.Path, RegistryPrefix)
	parts := strings.Split(rest, "/")

	if rest == "search/artifacts" {
		s.serveSearch(w, r)
		return
	}
	if len(parts) < 4 || parts[0] != "groups" || parts[2] != "artifacts" {
		writeError(w, http.StatusNotFound, "NotFoundException", "no such endpoint")
		return
	}
	group, artifact := parts[1], parts[3]
	if !isSafeToken(group) || !isSafeToken(artifact) {
		writeError(w, http.StatusBadRequest, "BadRequestException", "invalid group or artifact id")
		return
	}

	switch {
	case len(parts) == 4:
		s.serveContent(w, group, artifact, "")
	case len(parts) == 5 && parts[4] == "versions":
		s.serveVersions(w, r, group, artifact)
	case len(parts) == 6 && parts[4] == "versions" && isSafeToken(parts[5]):
		s.serveContent(w, group, artifact, parts[5])
	default:
		writeError(w, http.StatusNotFound, "NotFoundException", "no such endpoint")
	}
}

type searchedArtifact struct {
	ID          string `json:"id"`
	GroupID     string `json:"groupId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Version     string `json:"version"`
}

// pageParams reads limit (default 20) and offset (default 0) from the query.
func pageParams(q url.Values) (limit, offset int) {
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, err = strconv.Atoi(q.Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Server) serveSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	group := strings.TrimSpace(q.Get("group"))
	limit, offset := pageParams(q)

	s.mu.Lock()
	all := make([]searchedArtifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		if group != "" && a.GroupID != group {
			continue
		}
		all = append(all, searchedArtifact{
			ID:          a.ArtifactID,
			GroupID:     a.GroupID,
			Name:        a.Name,
			Description: a.Description,
			Type:        string(a.Type),
			Version:     a.Versions[len(a.Versions)-1].Version,
		})
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].GroupID != all[j].GroupID {
			return all[i].GroupID < all[j].GroupID
		}
		return all[i].ID < all[j].ID
	})

	page := []searchedArtifact{}
	if offset < len(all) {
		end := min(offset+limit, len(all))
		page = all[offset:end]
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": page, "count": len(all)})
}

func (s *Server) serveVersions(w http.ResponseWriter, r *http.Request, group, artifact string) {
	limit, offset := pageParams(r.URL.Query())

	s.mu.Lock()
	a, ok := s.artifacts[group+"/"+artifact]
	versions := []map[string]string{}
	if ok {
		for _, v := range a.Versions {
			versions = append(versions, map[string]string{"version": v.Version, "type": string(a.Type)})
		}
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "ArtifactNotFoundException", fmt.Sprintf("No artifact with ID '%s' in group '%s' was found.", artifact, group))
		return
	}
	page := []map[string]string{}
	if offset < len(versions) {
		page = versions[offset:min(offset+limit, len(versions))]
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": page, "count": len(versions)})
}

func (s *Server) serveContent(w http.ResponseWriter, group, artifact, version string) {
	s.mu.Lock()
	a, ok := s.artifacts[group+"/"+artifact]
	var found *Version
	var typ core.ArtifactType
	if ok {
		typ = a.Type
		if version == "" {
			v := a.Versions[len(a.Versions)-1]
			found = &v
		} else {
			for _, v := range a.Versions {
				if v.Version == version {
					found = &v
					break
				}
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "ArtifactNotFoundException", fmt.Sprintf("No artifact with ID '%s' in group '%s' was found.", artifact, group))
		return
	}
	if found == nil {
		writeError(w, http.StatusNotFound, "VersionNotFoundException", fmt.Sprintf("No version '%s' found for artifact with ID '%s' in group '%s'.", version, artifact, group))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Registry-Version", found.Version)
	w.Header().Set("X-Registry-ArtifactType", string(typ))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(found.Payload)
}

func (s *Server) handleSpecs(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowedException", "method not allowed")
		return
	}

	b, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequestException", "read body")
		return
	}
	var p core.SubmissionPayload
	if err := json.Unmarshal(b, &p); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequestException", "invalid spec payload")
		return
	}
	if strings.TrimSpace(p.ContainerName) == "" || strings.TrimSpace(p.Name) == "" {
		writeError(w, http.StatusBadRequest, "BadRequestException", "name and containerName are required")
		return
	}

	s.mu.Lock()
	if _, exists := s.specs[p.ContainerName]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "SpecAlreadyExistsException", fmt.Sprintf("spec for container '%s' already exists", p.ContainerName))
		return
	}
	sub := Submission{ID: uuid.NewString(), Payload: p}
	s.specs[p.ContainerName] = sub
	s.order = append(s.order, p.ContainerName)
	s.mu.Unlock()

	if s.storeDir != "" && isSafeToken(p.ContainerName) {
		dst := filepath.Join(s.storeDir, p.ContainerName+".json")
		if err := os.MkdirAll(s.storeDir, 0o755); err == nil {
			_ = os.WriteFile(dst, b, 0o644)
		}
	}

	writeJSON(w, http.StatusCreated, core.CreatedSpec{ID: sub.ID, Version: "1"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, map[string]any{
		"error_code": status,
		"name":       name,
		"message":    message,
	})
}

func isSafeToken(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\")
}
