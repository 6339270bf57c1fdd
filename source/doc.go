// Package source feeds model inputs one forward pass at a time. Digits
// places two copies of an MNIST test digit for the classifier, Noise draws
// latent vectors for the GAN generator and LatentGrid sweeps two latent
// axes of the VAE decoder.
package source
