/*
clump labels connected regions of equal-valued pixels ("clumps") in single-band
rasters that are too large to hold in memory.  The raster is processed a tile at a
time, so memory use is bounded by the tile size rather than the raster size.

Datasets

All commands work on tiled datasets: a metadata record and one compressed,
checksummed value per tile, kept in a storage engine.  A dataset is named by a
directory path, which is opened with the configured engine (badger by default),
or by a bucket URL such as "file:///data/labels", which uses the blob engine.

Commands

In the following documentation, the type of brackets designate
<required parameter> and [optional parameter].

	clump import <image or raw file> <dataset> [size=w,h] [type=uint16] [nodata=0]

Splits a PNG or TIFF image into a new dataset using the -tile size.  If "size" is
given, the file is read as raw little-endian samples of the given "type" instead.
Pixels equal to "nodata" are excluded from every clump.

	clump run <input dataset> <output dataset>

Labels every tile of the input, then runs merge passes over the tile seams until
no label is merged.  The output dataset receives the final labels, with 0 for
no-data pixels, plus statistics of the clumps.  Intermediate datasets are kept
under -tempdir and removed as soon as they are superseded.

	clump export <dataset> <file> [format=raw|png|preview] [width=512]

Writes a dataset as raw little-endian samples, as a gray PNG, or as a colorized
preview scaled to the given width.

	clump info <dataset>

Prints the dataset's metadata and statistics.

	clump engines

Lists the compiled-in storage engines.

Configuration

Options may be given in a TOML file passed with -config.  Command-line flags take
precedence over the file.

	[clump]
	tile_width = 512
	tile_height = 512
	max_passes = 64
	workers = 4
	compression = "lz4"
	label_type = "uint32"
	cache_mb = 128

	[store]
	engine = "badger"
	lowmem = true

	[logging]
	logfile = "/var/log/clump.log"
	max_log_size = 500 # MB
	max_log_age = 30   # days
*/
package main
