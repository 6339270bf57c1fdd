// Package onnx runs models through ONNX Runtime (github.com/yalue/onnxruntime_go).
//
// The topology is an .onnx file; its weights are either embedded or live in
// one external data file. A weight file other than the one the topology
// names is staged under that name in a temporary directory, so checkpoints
// of the same graph can be swapped. The runtime shared library is taken
// from the ONNXRUNTIME_LIB environment variable when set.
package onnx
