// Package topology reads the parts of an ONNX model descriptor the loader
// needs before it hands the file to the inference runtime: the graph
// inputs and outputs with their element types and dimensions, the
// external weight files the initializers refer to, and the operator types.
//
// Only the wire format is decoded (google.golang.org/protobuf/encoding/protowire),
// fields that are not listed here are skipped.
package topology
