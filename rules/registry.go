package rules

import "code.cloudfoundry.org/anubis"

// RegisterAll returns the RuleTypeInfo table for every rule type this
// package implements, ready to pass to anubis.New.
func RegisterAll() []anubis.RuleTypeInfo {
	return []anubis.RuleTypeInfo{
		{Typename: "cc_compile", Parse: ParseCcCompile},
		{Typename: "archive", Parse: ParseArchive},
		{Typename: "command", Parse: ParseCommand},
	}
}
