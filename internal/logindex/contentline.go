package logindex

import "fmt"

// MaxLinesPerFile bounds how many lines of one file a ContentLine can
// address. 2^24 lines leaves 8 bits of slot space.
const MaxLinesPerFile = 1 << 24

// MaxFiles is the number of slots addressable by a ContentLine.
const MaxFiles = 1 << 8

// ContentLine packs (slot, line number) into one opaque 32-bit id.
// It is only meaningful relative to the Indexer that produced it.
type ContentLine uint32

// NewContentLine encodes a slot and line number, rejecting overflow.
func NewContentLine(slot, line int) (ContentLine, error) {
	if slot < 0 || slot >= MaxFiles {
		return 0, fmt.Errorf("slot %d out of range", slot)
	}
	if line < 0 || line >= MaxLinesPerFile {
		return 0, fmt.Errorf("line %d out of range for slot %d", line, slot)
	}
	return ContentLine(slot*MaxLinesPerFile + line), nil
}

// Slot returns the file slot component.
func (cl ContentLine) Slot() int {
	return int(cl) / MaxLinesPerFile
}

// LineNumber returns the line number component.
func (cl ContentLine) LineNumber() int {
	return int(cl) % MaxLinesPerFile
}
