// Package pipeline drives a loaded model through a fixed number of
// sequential forward passes and hands every pass to a consumer: the
// accuracy evaluation of the two-digit classifier, the GAN sample grid and
// the VAE latent sweep.
//
// Each pass is consumed completely before the next one starts, since the
// engine overwrites its output buffers on every call.
package pipeline
