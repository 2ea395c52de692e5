package vision

// Config holds the tunables for both adapters. Defaults mirror the
// thresholds carried over from the reference gesture-typing analysis.
type Config struct {
	// TypingConfidenceThreshold is τ_typing: the per-frame hand score
	// above which handsTyping is true.
	TypingConfidenceThreshold float64

	// ScreenEditorTop, ScreenEditorBottom, ScreenEditorLeft, and
	// ScreenEditorRight are fractions of the frame's height/width that
	// bound the sub-rectangle the screen adapter examines, approximating
	// the editor area of a shared screen.
	ScreenEditorTop    float64
	ScreenEditorBottom float64
	ScreenEditorLeft   float64
	ScreenEditorRight  float64

	// ScreenConfirmFrames is the consecutive-candidate-positive count
	// required before screenTyping latches true.
	ScreenConfirmFrames int
}

// DefaultConfig returns the thresholds used when no override is supplied.
func DefaultConfig() Config {
	return Config{
		TypingConfidenceThreshold: 0.40,
		ScreenEditorTop:           0.25,
		ScreenEditorBottom:        0.80,
		ScreenEditorLeft:          0.15,
		ScreenEditorRight:         0.85,
		ScreenConfirmFrames:       3,
	}
}
