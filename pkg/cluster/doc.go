// Package cluster builds and queries the point-in-time view of a cluster.
//
// A Builder fans out to three independent inventories: the orchestrator
// (Nomad client nodes and allocations), the declared state (the "clients"
// and "core" workspaces) and the cloud inventory (running instances of every
// region). Once all of them have answered, Correlate joins cloud instances
// with Nomad clients on their private address, attaches allocations to each
// client and backfills missing names from the declared instances.
//
// The result is an immutable Cluster carrying an expiry (TTL). LoadOrBuild
// serves it from the on-disk Cache until it expires and rebuilds it after.
// Cache failures never fail a command; they are logged and trigger a rebuild.
//
// Nodes are resolved from user supplied needles (name, instance id, Nomad
// client id, private or public address) with FindNeedle and FindNeedles.
//
// Usage:
//
//	b := &cluster.Builder{Config: config.Load(), Cache: cluster.NewCache(".cache.json")}
//	c, err := b.LoadOrBuild(ctx)
//	if err != nil {
//	    return err
//	}
//	node, err := c.FindNeedle("10.0.0.5")
package cluster
