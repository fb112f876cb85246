/*
Package domain contains the core models of a chatbot flow.

It defines the authored graph (Nodes, Edges and their kind-specific payloads),
the runtime snapshot of a simulated conversation and the events the
interpreter emits. This package is kept pure and free of I/O or persistence,
following Hexagonal Architecture principles.

# Key Entities

  - Node: a step of the script. Its Payload is a closed union keyed by NodeKind.
  - Edge: a directed connection; Condition exits carry a "true"/"false" branch label.
  - Graph: the ordered node and edge lists, plus the forward/backward closures.
  - ExecutionState: running/paused flags, the current node, history and context.
  - StateDiff: the partial update streamed to clients after each mutation.
*/
package domain
