// Package model defines the normalized chat-completion contract consumed by
// the orchestration graph: a Request carrying the message log, advertised
// tool declarations and a binding mode, and a Response carrying exactly one
// assistant turn. Provider adapters (model/openai, model/anthropic) translate
// between this contract and vendor SDKs; ScriptedModel provides deterministic
// turns for tests and examples.
package model
