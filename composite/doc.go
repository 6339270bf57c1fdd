// Package composite tiles generated samples into one grayscale PNG.
package composite
