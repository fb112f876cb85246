/*
Package session implements editing-session management and persistence
orchestration.

A session is a flow graph plus the state of its simulated run. The Manager
serializes access per session (and optionally across replicas through a
ports.DistributedLocker), rebuilds a flow.Flow for each update, persists the
result and publishes the execution changes to subscribers as StateDiffs.
*/
package session
