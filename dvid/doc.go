/*
	Package dvid provides types, constants, and functions that have no other dependencies
	and can be used by all packages within the clump tooling.  This includes logging,
	element data types, 2d geometry, in-memory rasters, and the serialization format
	used when tiles are persisted.  Since these elements are used at multiple layers,
	we separate them here and allow reuse in layer-specific types through embedding.
*/
package dvid
