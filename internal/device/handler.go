package device

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Op is the kind of protocol request presented to the Handler.
type Op int

// Request kinds. Only the first three are served; the rest exist so a
// transport can hand every decoded request to the Handler and let it decide.
const (
	OpReadHolding Op = iota + 1
	OpWriteSingle
	OpWriteMultiple
	OpReadCoils
	OpReadDiscreteInputs
	OpReadInput
	OpWriteSingleCoil
	OpWriteMultipleCoils
	OpOther
)

// String returns a short name for logs.
func (o Op) String() string {
	switch o {
	case OpReadHolding:
		return "read_holding"
	case OpWriteSingle:
		return "write_single"
	case OpWriteMultiple:
		return "write_multiple"
	case OpReadCoils:
		return "read_coils"
	case OpReadDiscreteInputs:
		return "read_discrete_inputs"
	case OpReadInput:
		return "read_input"
	case OpWriteSingleCoil:
		return "write_single_coil"
	case OpWriteMultipleCoils:
		return "write_multiple_coils"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Request is one decoded protocol request.
type Request struct {
	Op      Op
	Address uint16

	// Count is the number of registers for OpReadHolding.
	Count uint16

	// Words holds the register values for OpWriteSingle (one word) and
	// OpWriteMultiple.
	Words []uint16
}

// Response is the handler's answer. For reads Words holds Count values. For
// writes Address, Count and Words echo the request so the transport can
// build the protocol acknowledgement.
type Response struct {
	Words   []uint16
	Address uint16
	Count   uint16
}

// Logger is the logging surface the handler needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Stats are cumulative handler counters.
type Stats struct {
	Reads       uint64 `json:"reads"`
	Writes      uint64 `json:"writes"`
	Rejected    uint64 `json:"rejected"`
	SetpointSet uint64 `json:"setpoint_changes"`
}

// Handler answers protocol requests against the shared State.
//
// Every request is applied atomically: a read takes one consistent snapshot
// of all addressed words, and a write is visible in full or not at all.
//
// Thread Safety:
//   - Handle is safe for concurrent use.
type Handler struct {
	state     *State
	registers *RegisterMap

	logger   Logger
	loggerMu sync.RWMutex

	reads    atomic.Uint64
	writes   atomic.Uint64
	rejected atomic.Uint64
	spSet    atomic.Uint64
}

// NewHandler creates a handler over state using the given register map.
func NewHandler(state *State, registers *RegisterMap) *Handler {
	return &Handler{
		state:     state,
		registers: registers,
	}
}

// SetLogger sets the logger for setpoint changes and rejected requests.
func (h *Handler) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	defer h.loggerMu.Unlock()
	h.logger = logger
}

// Registers returns the register map served by this handler.
func (h *Handler) Registers() *RegisterMap {
	return h.registers
}

// Stats returns the current counters.
func (h *Handler) Stats() Stats {
	return Stats{
		Reads:       h.reads.Load(),
		Writes:      h.writes.Load(),
		Rejected:    h.rejected.Load(),
		SetpointSet: h.spSet.Load(),
	}
}

// Handle serves one request.
//
// Reads never fail: unmapped words read as 0. Writes never fail: writes to
// anything but a scaled setpoint register are accepted and discarded. Any
// other request kind fails with ErrUnsupportedOperation.
//
// Parameters:
//   - req: Decoded request
//
// Returns:
//   - Response: Read words, or the echoed write address and count
//   - error: ErrUnsupportedOperation for unserved request kinds
func (h *Handler) Handle(req Request) (Response, error) {
	switch req.Op {
	case OpReadHolding:
		h.reads.Add(1)
		var words []uint16
		h.state.Do(func(v *Values) {
			words = h.registers.Read(v, req.Address, req.Count)
		})
		return Response{Words: words, Address: req.Address, Count: req.Count}, nil

	case OpWriteSingle, OpWriteMultiple:
		h.writes.Add(1)
		var (
			changed bool
			sp      float32
		)
		h.state.Do(func(v *Values) {
			changed = h.registers.Write(v, req.Address, req.Words)
			sp = v.Setpoint
		})
		if changed {
			h.spSet.Add(1)
			h.logInfo("setpoint changed", "address", req.Address, "setpoint", sp, "source", req.Op.String())
		} else {
			h.logDebug("write ignored", "address", req.Address, "words", len(req.Words))
		}
		count := req.Count
		if req.Op == OpWriteSingle || count == 0 {
			count = uint16(len(req.Words)) // #nosec G115 -- bounded by frame size
		}
		return Response{Words: req.Words, Address: req.Address, Count: count}, nil

	default:
		h.rejected.Add(1)
		h.logWarn("unsupported request", "op", req.Op.String(), "address", req.Address)
		return Response{}, fmt.Errorf("%w: %s", ErrUnsupportedOperation, req.Op)
	}
}

func (h *Handler) logDebug(msg string, keysAndValues ...any) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (h *Handler) logInfo(msg string, keysAndValues ...any) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (h *Handler) logWarn(msg string, keysAndValues ...any) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
