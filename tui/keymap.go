package tui

// Key binding constants used in handleKey.
const (
	KeyQuit  = "q"
	KeyCtrlC = "ctrl+c"
	KeyTab   = "tab"
	KeyUp    = "up"
	KeyDown  = "down"
	KeyJ     = "j"
	KeyK     = "k"
)
