// Package engine defines the handle through which the tools drive a
// pretrained network: one forward pass at a time, results read back as
// named blobs. Backends register themselves by name, the way database/sql
// drivers do, so commands pick one with a flag.
package engine
