// Package main evaluates a two-instance MNIST classifier. Every input
// pattern is one test digit drawn twice per sample at random positions on a
// 100x100 canvas; the network predicts the left copy in output slot 3 and
// the right copy in slot 7. The program prints the per-sample accuracy
// together with the accuracy of the arithmetic and geometric mean of the
// class probabilities over all samples of a pattern, once per weight file.
package main
