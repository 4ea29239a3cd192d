//go:build !windows

package platform

// ForegroundWindow is not supported outside Windows; profiles with
// target_apps never match and global profiles are used.
func ForegroundWindow() (WindowInfo, bool) {
	return WindowInfo{}, false
}
