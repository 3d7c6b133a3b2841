package platform

// Config holds the platform-related configuration passed from CLI flags.
type Config struct {
	Display string // X display for the window surface; empty means $DISPLAY
	StartX  bool   // Linux: start a private Xvfb
	Width   int    // Xvfb screen size
	Height  int
}
