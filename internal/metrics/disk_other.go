//go:build !linux && !darwin

package metrics

import "errors"

func DiskUsage(string) (Disk, error) {
	return Disk{}, errors.ErrUnsupported
}
