//go:build !linux

package main

func setPriority(nice int) error {
	return nil
}
