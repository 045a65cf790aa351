package modbus

import (
	"testing"

	"github.com/tbrandon/mbserver"

	"github.com/nerrad567/pm8sim/internal/device"
)

func TestOpForFunction(t *testing.T) {
	tests := map[uint8]device.Op{
		1:  device.OpReadCoils,
		2:  device.OpReadDiscreteInputs,
		3:  device.OpReadHolding,
		4:  device.OpReadInput,
		5:  device.OpWriteSingleCoil,
		6:  device.OpWriteSingle,
		15: device.OpWriteMultipleCoils,
		16: device.OpWriteMultiple,
		8:  device.OpOther,
		43: device.OpOther,
	}
	for fc, want := range tests {
		if got := opForFunction(fc); got != want {
			t.Errorf("opForFunction(%d) = %s, want %s", fc, got, want)
		}
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		fc      uint8
		data    []byte
		want    device.Request
		wantExc *mbserver.Exception
	}{
		{
			name: "read holding",
			fc:   3,
			data: []byte{0x1B, 0xBD, 0x00, 0x01},
			want: device.Request{Op: device.OpReadHolding, Address: 7101, Count: 1},
		},
		{name: "read too short", fc: 3, data: []byte{0x00, 0x64, 0x00}, wantExc: &mbserver.IllegalDataValue},
		{name: "read zero count", fc: 3, data: []byte{0x00, 0x64, 0x00, 0x00}, wantExc: &mbserver.IllegalDataValue},
		{name: "read count over limit", fc: 3, data: []byte{0x00, 0x64, 0x00, 126}, wantExc: &mbserver.IllegalDataValue},
		{name: "read past end of space", fc: 3, data: []byte{0xFF, 0xFF, 0x00, 0x02}, wantExc: &mbserver.IllegalDataAddress},
		{
			name: "write single",
			fc:   6,
			data: []byte{0x09, 0x12, 0x02, 0x8A},
			want: device.Request{Op: device.OpWriteSingle, Address: 2322, Count: 1, Words: []uint16{650}},
		},
		{name: "write single short", fc: 6, data: []byte{0x09, 0x12}, wantExc: &mbserver.IllegalDataValue},
		{
			name: "write multiple",
			fc:   16,
			data: []byte{0x09, 0x12, 0x00, 0x02, 0x04, 0x00, 0x7B, 0x01, 0xC8},
			want: device.Request{Op: device.OpWriteMultiple, Address: 2322, Count: 2, Words: []uint16{123, 456}},
		},
		{name: "write multiple byte count mismatch", fc: 16, data: []byte{0x09, 0x12, 0x00, 0x02, 0x02, 0x00, 0x7B}, wantExc: &mbserver.IllegalDataValue},
		{name: "write multiple truncated", fc: 16, data: []byte{0x09, 0x12, 0x00, 0x02, 0x04, 0x00, 0x7B}, wantExc: &mbserver.IllegalDataValue},
		{name: "write multiple past end", fc: 16, data: []byte{0xFF, 0xFF, 0x00, 0x02, 0x04, 0, 1, 0, 2}, wantExc: &mbserver.IllegalDataAddress},
		{
			name: "unsupported keeps address",
			fc:   1,
			data: []byte{0x00, 0x64, 0x00, 0x08},
			want: device.Request{Op: device.OpReadCoils, Address: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, exc := decodeRequest(tt.fc, tt.data)
			if tt.wantExc != nil {
				if exc == nil || *exc != *tt.wantExc {
					t.Fatalf("exception = %v, want %v", exc, *tt.wantExc)
				}
				return
			}
			if exc != nil {
				t.Fatalf("unexpected exception %v", *exc)
			}
			if got.Op != tt.want.Op || got.Address != tt.want.Address || got.Count != tt.want.Count {
				t.Errorf("request = %+v, want %+v", got, tt.want)
			}
			if len(got.Words) != len(tt.want.Words) {
				t.Fatalf("words = %v, want %v", got.Words, tt.want.Words)
			}
			for i := range got.Words {
				if got.Words[i] != tt.want.Words[i] {
					t.Errorf("words[%d] = %d, want %d", i, got.Words[i], tt.want.Words[i])
				}
			}
		})
	}
}

func TestEncodeResponse(t *testing.T) {
	tests := []struct {
		name string
		op   device.Op
		resp device.Response
		want []byte
	}{
		{"read", device.OpReadHolding, device.Response{Words: []uint16{0x41B0, 0xCCCD}}, []byte{4, 0x41, 0xB0, 0xCC, 0xCD}},
		{"write single", device.OpWriteSingle, device.Response{Address: 2322, Count: 1, Words: []uint16{650}}, []byte{0x09, 0x12, 0x02, 0x8A}},
		{"write multiple", device.OpWriteMultiple, device.Response{Address: 2322, Count: 2}, []byte{0x09, 0x12, 0x00, 0x02}},
		{"other", device.OpOther, device.Response{}, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encodeResponse(tt.op, tt.resp)
			if string(got) != string(tt.want) {
				t.Errorf("encodeResponse() = % x, want % x", got, tt.want)
			}
		})
	}
}
