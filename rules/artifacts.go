// Package rules implements a small set of real RuleCollaborator bodies —
// cc_compile, archive, and command — whose job is to exercise the
// scheduler's fan-out/defer/aggregate contract end-to-end. Their
// command-line construction is deliberately minimal: concrete rule bodies
// are explicitly out of core per the specification, only their shapes
// matter.
package rules

import "code.cloudfoundry.org/anubis/fshash"

// ObjectArtifact is what a single compiled source file produces.
type ObjectArtifact struct {
	SourcePath string
	Digest     fshash.Digest
}

// ArchiveArtifact is what a cc_compile rule's link continuation, or an
// archive rule, produces: a static archive aggregating object/file inputs.
type ArchiveArtifact struct {
	Path    string
	Members []string
}

// CommandArtifact is what a command rule produces.
type CommandArtifact struct {
	Stdout   string
	ExitCode int
}
