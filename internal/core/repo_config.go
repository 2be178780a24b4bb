package core

// RepoConfig holds per-repository overrides loaded from a .patchlens.yml file
// at the repository root. All fields are optional.
type RepoConfig struct {
	// CustomInstructions are extra review guidelines injected into every
	// chunk prompt for this repository.
	CustomInstructions []string `yaml:"custom_instructions"`

	// ExcludeDirs and ExcludeExts filter files during knowledge-base indexing.
	ExcludeDirs []string `yaml:"exclude_dirs"`
	ExcludeExts []string `yaml:"exclude_exts"`
}

// DefaultRepoConfig returns the configuration used when a repository carries
// no .patchlens.yml.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		ExcludeDirs: []string{"vendor", "node_modules", "dist", "build", "target"},
		ExcludeExts: []string{"lock", "sum", "min.js", "map", "svg", "png", "jpg"},
	}
}
