package badger

import (
	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"

	"github.com/janelia-flyem/clump/dvid"
)

// DefaultValueThreshold is the size of values in bytes that if exceeded get stored
// in the value log instead of the LSM tree.  Serialized tiles are usually larger.
const DefaultValueThreshold = 1 * dvid.Kilo

// getOptions reads engine settings from the store config.  Setting "lowmem" trades
// speed for a smaller memory footprint.
func getOptions(path string, config dvid.Config) (badger.Options, error) {
	opts := badger.DefaultOptions(path)

	valueSizeThresh, found, err := config.GetInt("value_threshold")
	if err != nil {
		return opts, err
	}
	if found {
		opts = opts.WithValueThreshold(int64(valueSizeThresh))
	} else {
		opts = opts.WithValueThreshold(DefaultValueThreshold)
	}

	lowmem, _, err := config.GetBool("lowmem")
	if err != nil {
		return opts, err
	}
	if lowmem {
		opts = opts.WithMemTableSize(16 * dvid.Mega).
			WithNumMemtables(2).
			WithNumLevelZeroTables(2).
			WithNumLevelZeroTablesStall(4).
			WithBlockCacheSize(8 * dvid.Mega).
			WithIndexCacheSize(4 * dvid.Mega).
			WithCompression(options.None)
	}
	return opts.WithNumVersionsToKeep(1).WithSyncWrites(false).WithLogger(badgerLogger{}), nil
}

// badgerLogger routes badger's own messages through the dvid logger, demoting
// its chatty info output to debug.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	dvid.Errorf("badger: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	dvid.Warningf("badger: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	dvid.Debugf("badger: "+format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	dvid.Debugf("badger: "+format, args...)
}
