/*
	This file holds the Command type used by the command-line tools to parse
	positional arguments and optional "key=value" settings.
*/

package dvid

import (
	"fmt"
	"strconv"
	"strings"
)

// Keys for setting various arguments within the command line via "key=value" strings.
const (
	KeySize   = "size"
	KeyType   = "type"
	KeyNoData = "nodata"
	KeyFormat = "format"
	KeyWidth  = "width"
)

// Command bundles a command-line request.  The first item in the string slice is
// the command, e.g., "import" or "run".  The other arguments are command arguments
// or optional settings of the form "<key>=<value>".
type Command []string

// String returns a space-separated command line
func (cmd Command) String() string {
	return strings.Join([]string(cmd), " ")
}

// Name returns the first argument which is assumed to be the name of the command.
func (cmd Command) Name() string {
	if len(cmd) == 0 {
		return ""
	}
	return cmd[0]
}

// Parameter scans a command for any "key=value" argument and returns
// the value of the passed 'key'.
func (cmd Command) Parameter(key string) (value string, found bool) {
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			elems := strings.SplitN(arg, "=", 2)
			if len(elems) == 2 && elems[0] == key {
				value = elems[1]
				found = true
				return
			}
		}
	}
	return
}

// PointParameter parses a "key=x,y" setting.
func (cmd Command) PointParameter(key string) (p Point2d, found bool, err error) {
	var s string
	if s, found = cmd.Parameter(key); !found {
		return
	}
	p, err = PointStr(s).Point2d()
	return
}

// IntParameter parses a "key=n" setting.
func (cmd Command) IntParameter(key string) (i int, found bool, err error) {
	var s string
	if s, found = cmd.Parameter(key); !found {
		return
	}
	if i, err = strconv.Atoi(s); err != nil {
		err = fmt.Errorf("bad %s setting %q: %v", key, s, err)
	}
	return
}

// CommandArgs sets a variadic argument set of string pointers to data
// command arguments, ignoring setting arguments of the form "<key>=<value>".
// If there aren't enough arguments to set a target, the target is set to the
// empty string.  It returns an 'overflow' slice that has all arguments
// beyond those needed for targets.
func (cmd Command) CommandArgs(targets ...*string) (overflow []string) {
	for _, target := range targets {
		*target = ""
	}
	if len(cmd) < 2 {
		return
	}
	curTarget := 0
	for _, arg := range cmd[1:] {
		if strings.Contains(arg, "=") {
			continue
		}
		if curTarget >= len(targets) {
			overflow = append(overflow, arg)
		} else {
			*(targets[curTarget]) = arg
		}
		curTarget++
	}
	return
}

// PointStr is a 2d coordinate in string format "x,y" where each coordinate
// is a 32-bit integer.
type PointStr string

func (s PointStr) Point2d() (point Point2d, err error) {
	_, err = fmt.Sscanf(string(s), "%d,%d", &point[0], &point[1])
	if err != nil {
		err = fmt.Errorf("bad point %q, expected \"x,y\": %v", string(s), err)
	}
	return
}
