// Package blob implements the named tensor exchanged between an inference
// engine and its consumers. A Blob always owns its data, so a snapshot taken
// after one forward pass stays valid after the next pass overwrites the
// engine's buffers.
package blob
