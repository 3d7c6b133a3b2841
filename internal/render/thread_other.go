//go:build !linux

package render

func threadID() int { return -1 }
