//go:build !(linux || darwin || freebsd)

package governor

import "errors"

var errUnsupported = errors.New("unsupported platform")

func freeBytes(string) (uint64, error) {
	return 0, errUnsupported
}
