package anubis

// ConfigValue is the opaque tree the core consumes from the configuration
// grammar layer (spec §3.2). The grammar parser and resolver themselves
// are an external collaborator — see the config package for the minimal
// YAML-backed implementation this repository ships to exercise the
// Orchestrator end-to-end.
type ConfigValue interface {
	// Resolve binds select/variable references against vars and dir,
	// returning a new, fully-resolved ConfigValue.
	Resolve(vars map[string]string, dir string) (ConfigValue, error)

	// Object retrieves the named top-level object and its grammar-level
	// typename (used to look up a RuleTypeInfo). ok is false if no object
	// with that name exists.
	Object(name string) (obj ConfigValue, typename string, ok bool)

	// Decode deserializes the named sub-object into out, a pointer to a
	// typed record (Mode, Toolchain, or a rule-specific struct).
	Decode(name string, out interface{}) error
}

// ConfigReader reads and parses a single configuration file into a
// ConfigValue. The Orchestrator is responsible for caching the result;
// ConfigReader itself performs no caching.
type ConfigReader interface {
	ReadFile(path string) (ConfigValue, error)
}
