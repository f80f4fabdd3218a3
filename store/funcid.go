package store

import "reflect"

// reflectValuePointer returns a comparable identity for a func value, used
// to let RemoveBackupCallback find a previously registered callback by
// reference (funcs themselves are not comparable in Go).
func reflectValuePointer(fn func() bool) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
