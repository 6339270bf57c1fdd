// Package accuracy scores class-probability tensors of shape
// [batch, classes, slots] against ground-truth labels.
//
// Three policies are accumulated side by side. The per-sample policy takes
// the argmax of every sample and slot separately and awards a fraction of a
// point per correct slot. The arithmetic-mean and geometric-mean policies
// average the class probabilities of all samples seen for one input pattern
// and award a whole point only when every slot is right.
package accuracy
