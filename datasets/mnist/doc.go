// Package mnist reads the gzip compressed IDX files of the MNIST handwritten
// digit dataset, verifying each file against its published SHA-256 digest.
package mnist
