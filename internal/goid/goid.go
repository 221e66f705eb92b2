// Package goid extracts the runtime id of the calling goroutine.
//
// The id comes from parsing the header line of runtime.Stack output
// ("goroutine N [running]:"). This costs on the order of a microsecond, so
// callers cache the result per goroutine and only pay it on first contact.
package goid

import "runtime"

// Get returns the id of the calling goroutine, or 0 if it cannot be parsed.
func Get() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parse(buf[:n])
}

// parse extracts the goroutine id from a "goroutine N [state]:" header.
func parse(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	buf = buf[len(prefix):]

	var id int64
	i := 0
	for i < len(buf) && buf[i] >= '0' && buf[i] <= '9' {
		id = id*10 + int64(buf[i]-'0')
		i++
	}
	if i == 0 {
		return 0
	}
	return id
}
