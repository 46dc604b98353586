// Package ruleset holds the server's active risk.RuleSet and swaps it when
// the rules file changes.
package ruleset
