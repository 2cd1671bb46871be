//go:build !linux

package worker

import "errors"

func pinToCore(core int) error {
	return errors.New("worker: CPU affinity is only supported on linux")
}
