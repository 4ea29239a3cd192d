package keys

// uiohookVKs maps libuiohook virtual codes (the Keycode field of gohook
// events, PC set-1 scan codes with 0x0E/0xE0 prefixes for extended keys) onto
// Windows virtual-key codes so the non-Windows listener can feed the same
// matching engine.
var uiohookVKs = func() map[uint16]uint32 {
	m := map[uint16]uint32{
		0x0001: VKEscape,
		0x000E: VKBack,
		0x000F: VKTab,
		0x001C: VKReturn,
		0x0039: VKSpace,
		0x003A: VKCapital,
		0x0045: VKNumLock,
		0x0046: VKScroll,
		0x0E37: VKSnapshot,
		0x0E45: VKPause,
		0x0E52: VKInsert,
		0x0E53: VKDelete,
		0x0E47: VKHome,
		0x0E4F: VKEnd,
		0x0E49: VKPrior,
		0x0E51: VKNext,
		0xE048: VKUp,
		0xE050: VKDown,
		0xE04B: VKLeft,
		0xE04D: VKRight,
		0x0E5D: VKApps,

		0x002A: VKLShift,
		0x0036: VKRShift,
		0x001D: VKLControl,
		0x0E1D: VKRControl,
		0x0038: VKLMenu,
		0x0E38: VKRMenu,
		0x0E5B: VKLWin,
		0x0E5C: VKRWin,

		0x0057: VKF1 + 10,
		0x0058: VKF1 + 11,
	}

	// F1-F10 are contiguous.
	for i := uint16(0); i < 10; i++ {
		m[0x003B+i] = VKF1 + uint32(i)
	}
	// 1-9 then 0.
	for i := uint16(0); i < 9; i++ {
		m[0x0002+i] = '1' + uint32(i)
	}
	m[0x000B] = '0'

	rows := []struct {
		start uint16
		chars string
	}{
		{0x0010, "QWERTYUIOP"},
		{0x001E, "ASDFGHJKL"},
		{0x002C, "ZXCVBNM"},
	}
	for _, row := range rows {
		for i, c := range row.chars {
			m[row.start+uint16(i)] = uint32(c)
		}
	}
	return m
}()

// VKFromUiohook converts a libuiohook key code to a Windows virtual-key code.
func VKFromUiohook(code uint16) (uint32, bool) {
	vk, ok := uiohookVKs[code]
	return vk, ok
}
