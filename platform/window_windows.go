//go:build windows

package platform

import (
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	getWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	getWindowTextW       = user32.NewProc("GetWindowTextW")
)

// ForegroundWindow returns the executable name and title of the window that
// currently has focus.
func ForegroundWindow() (WindowInfo, bool) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return WindowInfo{}, false
	}

	info := WindowInfo{Title: windowTitle(uintptr(hwnd))}

	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil || pid == 0 {
		return info, true
	}

	proc, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		// Elevated processes refuse the query from a normal-integrity caller.
		return info, true
	}
	defer windows.CloseHandle(proc)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(proc, 0, &buf[0], &size); err == nil {
		info.Exe = strings.ToLower(filepath.Base(windows.UTF16ToString(buf[:size])))
	}
	return info, true
}

func windowTitle(hwnd uintptr) string {
	n, _, _ := getWindowTextLengthW.Call(hwnd)
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	getWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}
