//go:build windows

package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	setWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	callNextHookEx      = user32.NewProc("CallNextHookEx")
	unhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	getMessage          = user32.NewProc("GetMessageW")
	peekMessage         = user32.NewProc("PeekMessageW")
	translateMessage    = user32.NewProc("TranslateMessage")
	dispatchMessage     = user32.NewProc("DispatchMessageW")
	postThreadMessage   = user32.NewProc("PostThreadMessageW")
)

const (
	whKeyboardLL = 13
	wmQuit       = 0x0012
	pmNoRemove   = 0x0000

	stopTimeout = time.Second
)

type kbdllhookstruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

type msg struct {
	hwnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       struct{ x, y int32 }
	lPrivate uint32
}

type loopReady struct {
	threadID uint32
	err      error
}

// LowLevelHook installs a WH_KEYBOARD_LL hook on a dedicated, OS-locked
// goroutine and pumps its message queue.
type LowLevelHook struct {
	mu       sync.Mutex
	state    atomic.Int32
	filter   KeyFilter
	handle   atomic.Uintptr
	threadID uint32
	done     chan struct{}

	// The callback trampoline is allocated once per hook; windows.NewCallback
	// slots are never freed.
	callback uintptr
}

// NewHook creates a new Windows low-level keyboard hook
func NewHook() Hook {
	h := &LowLevelHook{}
	h.callback = windows.NewCallback(h.proc)
	return h
}

// CanSuppress reports true: returning non-zero from the hook swallows the key.
func (h *LowLevelHook) CanSuppress() bool { return true }

// State returns the current lifecycle state.
func (h *LowLevelHook) State() HookState { return HookState(h.state.Load()) }

// Start installs the hook and blocks until it is running or has failed.
func (h *LowLevelHook) Start(filter KeyFilter) error {
	if err := user32.Load(); err != nil {
		return fmt.Errorf("user32.dll is unavailable: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.stopLocked(); err != nil {
		slog.Warn("Previous hook did not stop cleanly", "error", err)
	}

	h.state.Store(int32(HookStarting))
	h.filter = filter

	readyCh := make(chan loopReady, 1)
	done := make(chan struct{})
	go h.run(readyCh, done)

	ready := <-readyCh
	if ready.err != nil {
		<-done
		h.state.Store(int32(HookStopped))
		return fmt.Errorf("install keyboard hook: %w", ready.err)
	}

	h.threadID = ready.threadID
	h.done = done
	h.state.Store(int32(HookRunning))
	slog.Info("Keyboard hook installed", "thread", ready.threadID)
	return nil
}

// Stop uninstalls the hook. It is safe to call when the hook was never started.
func (h *LowLevelHook) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopLocked()
}

func (h *LowLevelHook) stopLocked() error {
	if h.done == nil {
		h.state.Store(int32(HookStopped))
		return nil
	}
	h.state.Store(int32(HookStopping))

	done, threadID := h.done, h.threadID
	h.done = nil
	h.threadID = 0

	stopErr := postQuit(threadID)

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		slog.Warn("Hook message loop stop timed out, unhooking from caller thread", "thread", threadID)
		stopErr = errors.Join(stopErr, errors.New("hook message loop stop timed out"))
		if handle := h.swapHandle(); handle != 0 {
			unhookWindowsHookEx.Call(handle)
		}
	}

	h.state.Store(int32(HookStopped))
	slog.Info("Keyboard hook removed")
	return stopErr
}

func (h *LowLevelHook) swapHandle() uintptr {
	return h.handle.Swap(0)
}

func (h *LowLevelHook) run(readyCh chan<- loopReady, done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	threadID := windows.GetCurrentThreadId()

	// Force creation of the thread message queue so PostThreadMessageW can
	// deliver WM_QUIT.
	var qmsg msg
	peekMessage.Call(uintptr(unsafe.Pointer(&qmsg)), 0, 0, 0, pmNoRemove)

	handle, _, err := setWindowsHookEx.Call(whKeyboardLL, h.callback, 0, 0)
	if handle == 0 {
		if err == syscall.Errno(0) {
			err = errors.New("SetWindowsHookExW failed")
		}
		readyCh <- loopReady{err: err}
		return
	}
	h.handle.Store(handle)
	defer func() {
		if handle := h.swapHandle(); handle != 0 {
			if r, _, err := unhookWindowsHookEx.Call(handle); r == 0 {
				slog.Error("UnhookWindowsHookEx failed", "error", err)
			}
		}
	}()

	readyCh <- loopReady{threadID: threadID}

	for {
		var m msg
		ret, _, lastErr := getMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			slog.Warn("GetMessageW returned error, exiting hook loop", "error", lastErr)
			return
		case 0:
			return
		}
		translateMessage.Call(uintptr(unsafe.Pointer(&m)))
		dispatchMessage.Call(uintptr(unsafe.Pointer(&m)))
	}
}

// proc is the LowLevelKeyboardProc. It runs on the pump thread for every
// keystroke system-wide and must return quickly.
func (h *LowLevelHook) proc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == hcAction && h.State() == HookRunning {
		// lParam points at an OS-owned KBDLLHOOKSTRUCT, valid only during this call.
		kb := (*kbdllhookstruct)(unsafe.Pointer(lParam))
		if filterMessage(h.filter, wParam, kb.vkCode, kb.dwExtraInfo) {
			return 1
		}
	}
	r, _, _ := callNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return r
}

func postQuit(threadID uint32) error {
	if threadID == 0 {
		return errors.New("cannot post WM_QUIT: thread id is 0")
	}
	res, _, err := postThreadMessage.Call(uintptr(threadID), wmQuit, 0, 0)
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("PostThreadMessageW failed")
	}
	return fmt.Errorf("PostThreadMessageW: %w", err)
}
