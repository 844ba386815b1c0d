//go:build !linux

package collector

import "errors"

func irqTotal() (uint64, error) {
	return 0, errors.New("interrupt counter not available on this platform")
}
