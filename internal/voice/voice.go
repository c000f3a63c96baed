// Package voice indexes the voices directory and resolves voice selectors to
// the reference assets the synthesis pipeline needs.
//
// A voice is a subdirectory of the voices root holding at least one reference
// audio file. It may additionally hold a conversion model (.pth) and a
// retrieval index (.index, .faiss or .idx):
//
//	voices/
//	  alice/
//	    prompt.wav
//	  bob/
//	    ref.flac
//	    bob.pth
//	    added_bob.index
//
// The [Catalog] keeps an immutable snapshot of that tree. Rescans build a new
// snapshot and swap it in atomically, so readers never observe a partially
// built index.
package voice

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a selector does not name a usable voice.
var ErrNotFound = errors.New("voice: not found")

const (
	// RandomID is the selector that picks a uniformly random indexed voice.
	RandomID = "random"

	// RandomName is the display name of the random sentinel entry.
	RandomName = "Random"

	// IDPrefix prefixes every voice id.
	IDPrefix = "voices/"
)

// Record describes one usable voice. Records are only produced by folder
// probing and therefore always carry a ReferencePath.
type Record struct {
	// Name is the folder name.
	Name string

	// ID is IDPrefix + Name.
	ID string

	// ReferencePath is the absolute path of the reference audio file.
	ReferencePath string

	// ConversionModelPath is the optional .pth timbre model.
	ConversionModelPath string

	// ConversionIndexPath is the optional retrieval index for the model.
	ConversionIndexPath string
}

// HasConversionModel reports whether the voice can go through timbre
// conversion.
func (r Record) HasConversionModel() bool {
	return r.ConversionModelPath != ""
}

// Entry is one row of the display listing.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NotFoundError is the concrete error returned for unresolvable selectors.
// It matches [ErrNotFound] under [errors.Is].
type NotFoundError struct {
	// Selector is the selector as given by the caller.
	Selector string

	// Reason is a short human-readable cause.
	Reason string

	// Suggestion is the closest indexed voice name, if any was close enough.
	Suggestion string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("voice: %q not found", e.Selector)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

// Is reports whether target is [ErrNotFound].
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
