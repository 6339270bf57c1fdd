// Package main sweeps pairs of latent axes of a trained MNIST VAE decoder.
// For every pair i <= j it decodes a 10x10 grid of latent points and writes
// debug/composite_vae_i_j.png. The output directory must exist.
//
// Usage:
//
//	vae_forward_mnist [flags] gpu
package main
