// Package device selects the compute device a model is bound to. Index -1
// is the host CPU, any other index is a CUDA device. Build with the cuda
// tag to verify CUDA indices through the driver API before a model is
// loaded; without it the inference runtime verifies the index itself.
package device
