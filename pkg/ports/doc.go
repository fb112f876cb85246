/*
Package ports defines the driven ports (interfaces) of the chatflow editor.

These interfaces decouple sessions from the storage backends that keep them,
so the same session manager works in memory, on disk or against Redis.

# Key Interfaces

  - SessionStore: persists and loads a Session (graph plus run state).
  - DistributedLocker: serializes access to a session across replicas.
*/
package ports
