package dvid

import (
	"fmt"
	"strings"

	. "github.com/janelia-flyem/go/gocheck"
)

type recordLogger struct {
	lines *[]string
}

func (r recordLogger) record(level, format string, args ...interface{}) {
	*r.lines = append(*r.lines, level+" "+fmt.Sprintf(format, args...))
}

func (r recordLogger) Debugf(format string, args ...interface{})    { r.record("DEBUG", format, args...) }
func (r recordLogger) Infof(format string, args ...interface{})     { r.record("INFO", format, args...) }
func (r recordLogger) Warningf(format string, args ...interface{})  { r.record("WARNING", format, args...) }
func (r recordLogger) Errorf(format string, args ...interface{})    { r.record("ERROR", format, args...) }
func (r recordLogger) Criticalf(format string, args ...interface{}) { r.record("CRITICAL", format, args...) }
func (r recordLogger) Shutdown()                                    {}

func (s *DataSuite) TestLogModes(c *C) {
	var lines []string
	saved, savedMode := logger, mode
	logger = recordLogger{&lines}
	defer func() { logger, mode = saved, savedMode }()

	SetLogMode(InfoMode)
	Debugf("hidden")
	Infof("shown %d", 1)
	SetLogMode(ErrorMode)
	Warningf("hidden")
	Errorf("shown %d", 2)
	Criticalf("shown %d", 3)
	SetLogMode(SilentMode)
	Criticalf("hidden")
	c.Assert(lines, DeepEquals, []string{"INFO shown 1", "ERROR shown 2", "CRITICAL shown 3"})

	lines = nil
	SetLogMode(InfoMode)
	NewTimeLog().Infof("pass %d", 4)
	c.Assert(lines, HasLen, 1)
	c.Assert(strings.HasPrefix(lines[0], "INFO pass 4: "), Equals, true)
}
