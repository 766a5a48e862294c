// Package core defines the conversation data model shared by every layer of
// structgraph: role-based content turns composed of a closed set of part
// types (text, structured data, function calls and function responses). The
// graph threads an ordered log of Content values through each step; models
// and tools only ever exchange these types.
package core
