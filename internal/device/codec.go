package device

import "math"

// Register encoding constants.
const (
	// ScaleFactor is the fixed multiplier of the scaled-integer encoding.
	ScaleFactor = 10

	// wordShift is the bit shift between the high and low word of a float32.
	wordShift = 16

	// lowWordMask selects the low 16 bits of a 32-bit pattern.
	lowWordMask = 0xFFFF
)

// EncodeScaled converts a value to its scaled-integer register word.
//
// The result is round(v*10) truncated to 16 bits. There is no overflow
// check: values above 6553.5 (or below zero) wrap silently, exactly as the
// real controller's legacy registers do.
//
// Parameters:
//   - v: Value to encode (°C)
//
// Returns:
//   - uint16: Register word
func EncodeScaled(v float32) uint16 {
	return uint16(int64(math.Round(float64(v) * ScaleFactor))) // #nosec G115 -- wrap is the documented behaviour
}

// MaxScaled is the largest value a scaled register can carry without
// wrapping.
const MaxScaled = math.MaxUint16 / float64(ScaleFactor)

// ScaledWord is the checked float64 form of EncodeScaled used for operator
// input: round(v*10), half away from zero. ok is false for NaN and for
// values outside 0..MaxScaled.
func ScaledWord(v float64) (word uint16, ok bool) {
	if math.IsNaN(v) || v < 0 || v > MaxScaled {
		return 0, false
	}
	return uint16(math.Round(v * ScaleFactor)), true // #nosec G115 -- range checked above
}

// DecodeScaled converts a scaled-integer register word back to a value.
//
// Example:
//
//	DecodeScaled(650) // 65.0
func DecodeScaled(word uint16) float64 {
	return float64(word) / ScaleFactor
}

// SplitFloat32 splits the IEEE-754 bit pattern of v into two register words,
// high word first.
//
// Returns:
//   - hi: Upper 16 bits (lower register address)
//   - lo: Lower 16 bits (next register address)
func SplitFloat32(v float32) (hi, lo uint16) {
	bits := math.Float32bits(v)
	return uint16(bits >> wordShift), uint16(bits & lowWordMask)
}

// JoinFloat32 reassembles a float32 from its high and low register words.
//
// JoinFloat32(SplitFloat32(v)) is bit-identical to v for every v, NaN
// payloads included.
func JoinFloat32(hi, lo uint16) float32 {
	return math.Float32frombits(uint32(hi)<<wordShift | uint32(lo))
}
