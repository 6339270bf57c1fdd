// Package sim is an in-process engine backend that synthesizes plausible
// outputs instead of running a network. Rank-3 outputs are class logits
// biased towards the label side blob, all other outputs are images in
// [0,1] decoded from the fed latent vectors by a fixed random projection.
// It exists for tests and for dry runs of the tools on machines without
// an inference runtime.
package sim
