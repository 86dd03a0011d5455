// Package config holds the driver-level options threaded through every
// analysis pass: package root, entry points, the generalized entry-point
// recognition idiom, and FASTEN output metadata.
package config

// Options configures one end-to-end analysis run.
type Options struct {
	// PackageRoot is the directory all internal modules are resolved
	// relative to.
	PackageRoot string
	// EntryPoints is the ordered list of source files to begin analysis
	// from.
	EntryPoints []string
	// InitializerFilename is the package-initializer file name (default
	// "__init__.py") that the package walk uses to classify initializers.
	// The import resolver's relative-import level arithmetic checks for
	// "__init__.py" itself and does not read this setting.
	InitializerFilename string
	// HostModule and EntrypointFunc generalize the single hardcoded
	// third-party entry-point registration idiom the original tool
	// recognized: a call of the form HostModule.EntrypointFunc(_, fn) is
	// treated as registering fn as a program entry point.
	HostModule     string
	EntrypointFunc string
	// BuiltinModules names modules that always short-circuit import
	// resolution to edge creation without file lookup.
	BuiltinModules map[string]struct{}

	// FASTEN output metadata, used only when --fasten is requested.
	Product   string
	Forge     string
	Version   string
	Timestamp string

	// Lint enables the best-effort report, on stderr, of dict-literal
	// subscripts whose key was never assigned.
	Lint bool
}

// Default returns Options with the conventional initializer filename and
// a small builtin-module set populated.
func Default() *Options {
	return &Options{
		InitializerFilename: "__init__.py",
		HostModule:          "atheris",
		EntrypointFunc:      "Setup",
		BuiltinModules: map[string]struct{}{
			"sys": {}, "os": {}, "builtins": {}, "itertools": {}, "typing": {},
		},
	}
}
