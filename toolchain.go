package anubis

// Toolchain is the deserialized record indexed by (mode target, toolchain
// target) (spec §3.4). Fields beyond Name are rule-shape-specific and are
// left in Raw for a rule implementation to decode further.
type Toolchain struct {
	Name            string
	ModeTarget      Target
	ToolchainTarget Target
	Raw             ConfigValue
}

type toolchainRecord struct {
	Name string `yaml:"name"`
}

// toolchainKey is the composite key for the toolchain cache.
type toolchainKey struct {
	ModeTarget      Target
	ToolchainTarget Target
}
