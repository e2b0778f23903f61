// Package chunker splits raw document text into overlapping fixed-size
// windows, the unit of embedding and retrieval.
package chunker

import "fmt"

// Split cuts text into windows of window runes each, where consecutive
// windows overlap by overlap runes. The last window may be shorter. Empty
// text yields no windows. The stride window-overlap must be positive, so
// iteration always advances.
func Split(text string, window, overlap int) ([]string, error) {
	if window <= 0 {
		return nil, fmt.Errorf("chunker: window size must be positive, got %d", window)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: overlap must be non-negative, got %d", overlap)
	}
	stride := window - overlap
	if stride <= 0 {
		return nil, fmt.Errorf("chunker: overlap %d >= window %d would not advance", overlap, window)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	var windows []string
	for start := 0; start < len(runes); start += stride {
		end := start + window
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return windows, nil
}

// Count returns how many windows Split would produce without materializing
// them.
func Count(textLen, window, overlap int) int {
	stride := window - overlap
	if textLen <= 0 || stride <= 0 {
		return 0
	}
	if textLen <= window {
		return 1
	}
	// First window covers window runes; each further stride covers stride new
	// runes.
	n := 1 + (textLen-window)/stride
	if (textLen-window)%stride != 0 {
		n++
	}
	return n
}
