package vision

import "time"

// ScreenOutput is the screen substream's normalised per-frame signal.
type ScreenOutput struct {
	ScreenTyping bool
}

// changeSample is one frame's change-ratio reading, retained briefly for
// the rhythm check.
type changeSample struct {
	at  time.Time
	med float64
}

// ScreenAdapter detects keyboard-driven text entry on a shared screen by
// diffing successive frames of a centred editor-area sub-rectangle and
// scoring the result against a typing signature, an exclusion set, a
// localisation check, and a short-window rhythm check. It holds the
// previous frame's region and a short rhythm history internally; it is
// not safe for concurrent use by more than one session.
type ScreenAdapter struct {
	cfg Config

	prevRegion   []byte
	prevW, prevH int

	consecutiveActivity int
	rhythm              []changeSample
}

// NewScreenAdapter builds a ScreenAdapter with the given thresholds.
func NewScreenAdapter(cfg Config) *ScreenAdapter {
	return &ScreenAdapter{cfg: cfg}
}

// DetectScreen scores frame's editor region against the previous call's
// region. The first call for a fresh adapter always returns false, since
// there is nothing to diff against yet.
func (a *ScreenAdapter) DetectScreen(frame Frame) (ScreenOutput, error) {
	region, w, h := cropRegion(frame, a.cfg)

	if a.prevRegion == nil || a.prevW != w || a.prevH != h {
		a.prevRegion = region
		a.prevW, a.prevH = w, h
		return ScreenOutput{}, nil
	}

	lowRatio, medRatio, highRatio, lowMask := diffRatios(a.prevRegion, region, w, h)
	a.prevRegion = region

	signature := (lowRatio > 0.003 && lowRatio < 0.04 && medRatio < 0.02) ||
		(medRatio > 0.005 && medRatio < 0.06 && highRatio < 0.03)

	excluded := lowRatio > 0.12 || medRatio > 0.08 || lowRatio < 0.002

	localized := isLocalized(lowMask, w, h)

	now := frame.CapturedAt
	a.rhythm = append(a.rhythm, changeSample{at: now, med: medRatio})
	a.rhythm = pruneOlderThan(a.rhythm, now, 2*time.Second)
	hasRhythm := hasTypingRhythm(a.rhythm)

	candidate := signature && !excluded && localized && (hasRhythm || a.consecutiveActivity >= 2)

	if candidate {
		a.consecutiveActivity++
	} else if a.consecutiveActivity > 0 {
		a.consecutiveActivity--
	}

	return ScreenOutput{ScreenTyping: candidate && a.consecutiveActivity >= a.cfg.ScreenConfirmFrames}, nil
}

// cropRegion extracts the configured centred sub-rectangle from frame.
func cropRegion(frame Frame, cfg Config) (region []byte, w, h int) {
	top := int(float64(frame.Height) * cfg.ScreenEditorTop)
	bottom := int(float64(frame.Height) * cfg.ScreenEditorBottom)
	left := int(float64(frame.Width) * cfg.ScreenEditorLeft)
	right := int(float64(frame.Width) * cfg.ScreenEditorRight)

	w = right - left
	h = bottom - top
	if w <= 0 || h <= 0 {
		return nil, 0, 0
	}

	region = make([]byte, w*h)
	for y := 0; y < h; y++ {
		srcRow := (top + y) * frame.Width
		copy(region[y*w:(y+1)*w], frame.Pixels[srcRow+left:srcRow+left+w])
	}
	return region, w, h
}

// diffRatios computes the fraction of pixels exceeding the low/med/high
// absolute-difference thresholds, plus the low-level binary mask used for
// the localisation check.
func diffRatios(prev, cur []byte, w, h int) (low, med, high float64, lowMask []bool) {
	total := w * h
	if total == 0 {
		return 0, 0, 0, nil
	}

	lowMask = make([]bool, total)
	var lowCount, medCount, highCount int
	for i := 0; i < total; i++ {
		d := absDiff(prev[i], cur[i])
		if d > 20 {
			lowMask[i] = true
			lowCount++
		}
		if d > 35 {
			medCount++
		}
		if d > 50 {
			highCount++
		}
	}

	return float64(lowCount) / float64(total),
		float64(medCount) / float64(total),
		float64(highCount) / float64(total),
		lowMask
}

func absDiff(a, b byte) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// isLocalized reports whether the low-level change mask is concentrated
// in one or two quadrants rather than spread uniformly, the signature of
// text appearing in one place rather than mouse motion or a redraw.
func isLocalized(mask []bool, w, h int) bool {
	if mask == nil {
		return false
	}

	midW, midH := w/2, h/2
	var quad [4]int
	for y := 0; y < h; y++ {
		row := y * w
		qRow := 0
		if y >= midH {
			qRow = 2
		}
		for x := 0; x < w; x++ {
			if !mask[row+x] {
				continue
			}
			q := qRow
			if x >= midW {
				q++
			}
			quad[q]++
		}
	}

	total := quad[0] + quad[1] + quad[2] + quad[3]
	if total <= 100 {
		return false
	}

	maxQ, minQ := quad[0], quad[0]
	for _, q := range quad[1:] {
		if q > maxQ {
			maxQ = q
		}
		if q < minQ {
			minQ = q
		}
	}
	if minQ == 0 {
		return true
	}
	return maxQ > 3*minQ
}

// hasTypingRhythm reports whether the medium-threshold change ratio over
// the retained rhythm window has the variance and mean of a sustained
// typing cadence rather than a one-off burst or a flat idle screen.
func hasTypingRhythm(samples []changeSample) bool {
	if len(samples) < 8 {
		return false
	}

	var sum float64
	for _, s := range samples {
		sum += s.med
	}
	mean := sum / float64(len(samples))

	var variance float64
	for _, s := range samples {
		d := s.med - mean
		variance += d * d
	}
	variance /= float64(len(samples))

	return variance > 0.00002 && variance < 0.002 && mean > 0.003 && mean < 0.06
}

func pruneOlderThan(samples []changeSample, now time.Time, window time.Duration) []changeSample {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(samples); i++ {
		if samples[i].at.After(cutoff) {
			break
		}
	}
	return samples[i:]
}
