//go:build windows

package writer

import (
	"fmt"
	"syscall"
	"unsafe"
)

func checkDiskSpaceImpl(path string) error {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	proc := kernel32.NewProc("GetDiskFreeSpaceExW")

	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return fmt.Errorf("convert path %s: %w", path, err)
	}

	var freeBytes, totalBytes, totalFreeBytes uint64
	ret, _, callErr := proc.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&freeBytes)),
		uintptr(unsafe.Pointer(&totalBytes)),
		uintptr(unsafe.Pointer(&totalFreeBytes)),
	)
	if ret == 0 {
		return fmt.Errorf("GetDiskFreeSpaceEx %s: %w", path, callErr)
	}
	if totalBytes == 0 {
		return fmt.Errorf("disk check %s: zero total bytes", path)
	}

	freePct := float64(freeBytes) / float64(totalBytes) * 100
	if freePct < 10.0 {
		return fmt.Errorf("insufficient disk space on %s: %.1f%% free (minimum 10%%)", path, freePct)
	}
	return nil
}
