package poll

// Stability decides when a streamed text has stopped growing.
//
// An empty observation resets the counter. A non-empty observation whose
// length equals the previous one increments it; any other length resets it
// and becomes the new reference. The text is stable once the counter reaches
// the threshold.
type Stability struct {
	threshold int
	lastLen   int
	stable    int
	lastText  string
}

func NewStability(threshold int) *Stability {
	if threshold < 1 {
		threshold = 1
	}

	return &Stability{threshold: threshold}
}

// Observe records one sample and reports whether the text is now stable.
func (s *Stability) Observe(text string) bool {
	if text == "" {
		s.stable = 0

		return false
	}

	if len(text) == s.lastLen {
		s.stable++
	} else {
		s.stable = 0
		s.lastLen = len(text)
	}

	s.lastText = text

	return s.stable >= s.threshold
}

// Count is the current number of consecutive unchanged observations.
func (s *Stability) Count() int {
	return s.stable
}

// LastLen is the length of the most recent non-empty observation.
func (s *Stability) LastLen() int {
	return s.lastLen
}

// Text is the most recent non-empty observation.
func (s *Stability) Text() string {
	return s.lastText
}
