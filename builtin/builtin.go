// Package builtin registers every built-in element type with the
// process-wide ElementFactory as a side effect of being imported.
// Callers that want Distributer/Converger available by name in a graph
// document import this package for its side effect:
//
//	import _ "github.com/sophon-stream/graphrt/builtin"
package builtin

import (
	_ "github.com/sophon-stream/graphrt/elements/converger"
	_ "github.com/sophon-stream/graphrt/elements/distributer"
)
