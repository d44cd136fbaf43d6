// Command scrimsbot runs the data-access layer of the scrims
// community-management bot: cached relational tables over postgres with
// optimistic writes and cross-process change notifications.
//
// The interesting packages live under pkg/: db (statement builder, typed
// tables, caches, client), bus (notification transports), models (the
// schema's typed rows), apis (external HTTP collaborators) and sequence
// (per-key work coalescing).
package main

import "github.com/scrimsnet/scrimsbot/cmd"

func main() {
	cmd.Execute()
}
