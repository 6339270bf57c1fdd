// Package main draws samples from a trained MNIST GAN generator and tiles
// the first hundred of them into composite.png to monitor training.
//
// Usage:
//
//	gan_forward_mnist [flags] gpu
package main
