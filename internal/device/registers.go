package device

import (
	"fmt"
	"sort"
)

// Quantity identifies which State field a register exposes.
type Quantity int

// Quantities exposed through the register map.
const (
	QuantityProcessValue Quantity = iota + 1
	QuantitySetpoint
)

// String returns the quantity name used in logs and the status API.
func (q Quantity) String() string {
	switch q {
	case QuantityProcessValue:
		return "process_value"
	case QuantitySetpoint:
		return "setpoint"
	default:
		return fmt.Sprintf("quantity(%d)", int(q))
	}
}

// Encoding identifies how a quantity is laid out in one register word.
type Encoding int

// Register encodings.
const (
	// EncodingScaledX10 is round(value*10) in a single word.
	EncodingScaledX10 Encoding = iota + 1

	// EncodingFloat32High is the upper half of the IEEE-754 float32 pattern.
	EncodingFloat32High

	// EncodingFloat32Low is the lower half of the IEEE-754 float32 pattern.
	// It is only meaningful when read together with the preceding high word.
	EncodingFloat32Low
)

// String returns the encoding name used in logs and the status API.
func (e Encoding) String() string {
	switch e {
	case EncodingScaledX10:
		return "scaled_int_x10"
	case EncodingFloat32High:
		return "float32_high_word"
	case EncodingFloat32Low:
		return "float32_low_word"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Watlow PM8 register addresses served by the simulator.
const (
	AddrProcessValueLegacy uint16 = 100
	AddrSetpointLegacy     uint16 = 300
	AddrProcessValueFloat  uint16 = 360 // high word; low word at 361
	AddrSetpoint1          uint16 = 2322
	AddrProcessValue       uint16 = 7101
)

// Mapping binds one register address to a quantity and an encoding.
type Mapping struct {
	Address  uint16   `json:"address"`
	Quantity Quantity `json:"-"`
	Encoding Encoding `json:"-"`
}

// RegisterMap is the static address table of the simulated controller.
//
// A quantity may appear at several addresses with independent encodings;
// legacy and standard ranges alias the same underlying value. The map is
// read-only after construction and safe for concurrent use.
type RegisterMap struct {
	byAddress map[uint16]Mapping
}

// DefaultRegisterMap returns the PM8 register layout.
func DefaultRegisterMap() *RegisterMap {
	m, err := NewRegisterMap([]Mapping{
		{Address: AddrProcessValueLegacy, Quantity: QuantityProcessValue, Encoding: EncodingScaledX10},
		{Address: AddrProcessValue, Quantity: QuantityProcessValue, Encoding: EncodingScaledX10},
		{Address: AddrSetpointLegacy, Quantity: QuantitySetpoint, Encoding: EncodingScaledX10},
		{Address: AddrSetpoint1, Quantity: QuantitySetpoint, Encoding: EncodingScaledX10},
		{Address: AddrProcessValueFloat, Quantity: QuantityProcessValue, Encoding: EncodingFloat32High},
		{Address: AddrProcessValueFloat + 1, Quantity: QuantityProcessValue, Encoding: EncodingFloat32Low},
	})
	if err != nil {
		panic(err) // static table; a duplicate here is a programming error
	}
	return m
}

// NewRegisterMap builds a register map from a list of mappings.
//
// Returns:
//   - *RegisterMap: Ready-to-use map
//   - error: If an address appears more than once
func NewRegisterMap(mappings []Mapping) (*RegisterMap, error) {
	m := &RegisterMap{byAddress: make(map[uint16]Mapping, len(mappings))}
	for _, mp := range mappings {
		if _, dup := m.byAddress[mp.Address]; dup {
			return nil, fmt.Errorf("register %d mapped twice", mp.Address)
		}
		m.byAddress[mp.Address] = mp
	}
	return m, nil
}

// Lookup resolves a single address.
func (m *RegisterMap) Lookup(address uint16) (Mapping, bool) {
	mp, ok := m.byAddress[address]
	return mp, ok
}

// Mappings returns every mapping ordered by address.
func (m *RegisterMap) Mappings() []Mapping {
	out := make([]Mapping, 0, len(m.byAddress))
	for _, mp := range m.byAddress {
		out = append(out, mp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Read produces one word per address in [address, address+count).
//
// Each address is resolved on its own. Unmapped addresses yield 0. Reading a
// float low word without its high word yields half of a bit pattern; that
// mirrors the real device and is not an error.
//
// The caller must hold exclusive access to v (see State.Do) so both halves
// of a float pair come from the same value.
func (m *RegisterMap) Read(v *Values, address, count uint16) []uint16 {
	words := make([]uint16, count)
	for i := range words {
		words[i] = m.readWord(v, address+uint16(i)) // #nosec G115 -- i < count
	}
	return words
}

func (m *RegisterMap) readWord(v *Values, address uint16) uint16 {
	mp, ok := m.byAddress[address]
	if !ok {
		return 0
	}

	value := m.quantityValue(v, mp.Quantity)
	switch mp.Encoding {
	case EncodingScaledX10:
		return EncodeScaled(value)
	case EncodingFloat32High:
		hi, _ := SplitFloat32(value)
		return hi
	case EncodingFloat32Low:
		_, lo := SplitFloat32(value)
		return lo
	default:
		return 0
	}
}

func (m *RegisterMap) quantityValue(v *Values, q Quantity) float32 {
	switch q {
	case QuantityProcessValue:
		return v.ProcessValue
	case QuantitySetpoint:
		return v.Setpoint
	default:
		return 0
	}
}

// Write applies a register write starting at address.
//
// Only the scaled setpoint registers are writable: if address is one of
// them and words is non-empty, the setpoint becomes words[0]/10. Every other
// address silently accepts and discards the write. Words beyond the first
// are ignored, so one write can update at most one quantity.
//
// Returns:
//   - bool: true if the setpoint was changed
func (m *RegisterMap) Write(v *Values, address uint16, words []uint16) bool {
	if len(words) == 0 {
		return false
	}
	mp, ok := m.byAddress[address]
	if !ok || mp.Quantity != QuantitySetpoint || mp.Encoding != EncodingScaledX10 {
		return false
	}
	v.Setpoint = float32(DecodeScaled(words[0]))
	return true
}
