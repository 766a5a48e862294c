// Package graph implements the orchestration state machine that drives a
// tool-using model toward a validated structured record.
//
// One invocation walks a small conditional graph:
//
//	agent ──(router: continue)──▶ tools ──▶ agent
//	agent ──(router: respond)───▶ respond ──▶ end
//
// The agent node performs one model turn, the router inspects the resulting
// assistant message, the tools node executes every requested function call
// and appends the paired results, and the respond node converts gathered
// evidence into the record. Two interchangeable termination strategies are
// available at construction time: advertising the record schema as a forced
// response tool, or running free tool-calling to completion and handing the
// evidence to a second schema-constrained model call.
package graph
