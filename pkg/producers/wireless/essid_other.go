//go:build !linux

package wireless

import "errors"

func queryESSID(string) (string, error) {
	return "", errors.New("essid query is only supported on linux")
}
