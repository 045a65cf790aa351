package modbus

import (
	"encoding/binary"

	"github.com/tbrandon/mbserver"

	"github.com/nerrad567/pm8sim/internal/device"
)

// Modbus function codes handled by the simulator.
const (
	fcReadCoils              uint8 = 1
	fcReadDiscreteInputs     uint8 = 2
	fcReadHoldingRegisters   uint8 = 3
	fcReadInputRegisters     uint8 = 4
	fcWriteSingleCoil        uint8 = 5
	fcWriteSingleRegister    uint8 = 6
	fcWriteMultipleCoils     uint8 = 15
	fcWriteMultipleRegisters uint8 = 16
)

// Protocol limits on register counts per request.
const (
	MaxReadCount  = 125
	MaxWriteCount = 123
)

const addressSpace = 1 << 16

// opForFunction maps a Modbus function code to a device operation.
func opForFunction(fc uint8) device.Op {
	switch fc {
	case fcReadHoldingRegisters:
		return device.OpReadHolding
	case fcWriteSingleRegister:
		return device.OpWriteSingle
	case fcWriteMultipleRegisters:
		return device.OpWriteMultiple
	case fcReadCoils:
		return device.OpReadCoils
	case fcReadDiscreteInputs:
		return device.OpReadDiscreteInputs
	case fcReadInputRegisters:
		return device.OpReadInput
	case fcWriteSingleCoil:
		return device.OpWriteSingleCoil
	case fcWriteMultipleCoils:
		return device.OpWriteMultipleCoils
	default:
		return device.OpOther
	}
}

// decodeRequest turns a request PDU body into a device request.
//
// Unsupported function codes decode to a request whose Op the handler will
// reject; malformed bodies of supported codes yield IllegalDataValue, and
// ranges running past the end of the address space yield IllegalDataAddress.
func decodeRequest(fc uint8, data []byte) (device.Request, *mbserver.Exception) {
	op := opForFunction(fc)
	req := device.Request{Op: op}

	switch op {
	case device.OpReadHolding:
		if len(data) < 4 {
			return req, &mbserver.IllegalDataValue
		}
		req.Address = binary.BigEndian.Uint16(data[0:2])
		req.Count = binary.BigEndian.Uint16(data[2:4])
		if req.Count < 1 || req.Count > MaxReadCount {
			return req, &mbserver.IllegalDataValue
		}
		if int(req.Address)+int(req.Count) > addressSpace {
			return req, &mbserver.IllegalDataAddress
		}

	case device.OpWriteSingle:
		if len(data) < 4 {
			return req, &mbserver.IllegalDataValue
		}
		req.Address = binary.BigEndian.Uint16(data[0:2])
		req.Count = 1
		req.Words = []uint16{binary.BigEndian.Uint16(data[2:4])}

	case device.OpWriteMultiple:
		if len(data) < 5 {
			return req, &mbserver.IllegalDataValue
		}
		req.Address = binary.BigEndian.Uint16(data[0:2])
		req.Count = binary.BigEndian.Uint16(data[2:4])
		byteCount := int(data[4])
		if req.Count < 1 || req.Count > MaxWriteCount || byteCount != int(req.Count)*2 || len(data) < 5+byteCount {
			return req, &mbserver.IllegalDataValue
		}
		if int(req.Address)+int(req.Count) > addressSpace {
			return req, &mbserver.IllegalDataAddress
		}
		req.Words = bytesToWords(data[5 : 5+byteCount])

	default:
		if len(data) >= 2 {
			req.Address = binary.BigEndian.Uint16(data[0:2])
		}
	}

	return req, nil
}

// encodeResponse builds the response PDU body for a handled request.
func encodeResponse(op device.Op, resp device.Response) []byte {
	switch op {
	case device.OpReadHolding:
		body := wordsToBytes(resp.Words)
		return append([]byte{byte(len(body))}, body...) // #nosec G115 -- at most 250 bytes
	case device.OpWriteSingle:
		var value uint16
		if len(resp.Words) > 0 {
			value = resp.Words[0]
		}
		return wordsToBytes([]uint16{resp.Address, value})
	case device.OpWriteMultiple:
		return wordsToBytes([]uint16{resp.Address, resp.Count})
	default:
		return []byte{}
	}
}

func bytesToWords(b []byte) []uint16 {
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(b[i*2:])
	}
	return words
}

func wordsToBytes(words []uint16) []byte {
	b := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(b[i*2:], w)
	}
	return b
}
