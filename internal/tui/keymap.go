package tui

// Key binding constants used in handleKey and handlePromptKey.
const (
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
	KeySpace     = " "
	KeyEnter     = "enter"
	KeyEsc       = "esc"
	KeyBackspace = "backspace"
	KeyUpload    = "u"
	KeyClear     = "c"
	KeyPause     = "p"
)
