// Package diffusion is the reference update rule the driver runs: explicit
// five-point diffusion of a scalar field on a uniform mesh, one task per
// block.
//
// Each round a task rebuilds its block with a one-cell halo, filling the
// halo from neighbor fragments where a neighbor covers it and by copying the
// nearest interior cell where the halo leaves the mesh (a zero-gradient
// wall). After the stencil update it sends every neighbor the part of the new
// block that falls inside that neighbor's halo.
package diffusion
