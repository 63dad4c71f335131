//go:build !unix

package health

import "os"

func lockFile(f *os.File) error   { return nil }
func lockShared(f *os.File) error { return nil }
func unlockFile(f *os.File) error { return nil }
