package version

// Current is the specsynth release version.
const Current = "0.3.0"

// UserAgent identifies specsynth to the registry and the spec store.
func UserAgent() string {
	return "specsynth/" + Current
}
