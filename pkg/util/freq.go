package util

import "fmt"

func MHzToString(hz float64) string {
	return fmt.Sprintf("%0.4f MHz", hz/1e6)
}

func KspsToString(sps float64) string {
	return fmt.Sprintf("%0.3f ksps", sps/1e3)
}
