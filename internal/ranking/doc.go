// Package ranking implements the scoring and ranking engine for tools.
//
// Scores are computed per factor on a 0-100 scale, weighted by a named,
// versioned configuration, and mapped to discrete tiers via a fixed
// threshold table with inclusive lower bounds. Rankings are total orders:
// ties on the overall score are broken by tool ID so that two runs over
// the same inputs always produce the same order.
package ranking
