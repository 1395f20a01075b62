package modbus

import (
	"encoding/binary"
	"fmt"
)

// ModbusFrame is an MBAP header (7 bytes) followed by the PDU.
type ModbusFrame struct {
	TransactionID uint16 // request/response correlation
	ProtocolID    uint16 // always 0x0000 for Modbus
	Length        uint16 // number of following bytes: unit id + PDU
	UnitID        uint8
	FunctionCode  uint8
	Data          []byte
}

const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleCoils     = 0x0F
	FuncCodeWriteMultipleRegisters = 0x10

	exceptionFlag = 0x80
	mbapLength    = 7
	maxFrameSize  = 260
)

// ExceptionError is a Modbus exception response from the coupler.
type ExceptionError struct {
	FunctionCode uint8
	Code         uint8
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus exception 0x%02X on function 0x%02X", e.Code, e.FunctionCode)
}

func (f *ModbusFrame) Encode() []byte {
	f.Length = uint16(len(f.Data) + 2) // unit id + function code

	frame := make([]byte, mbapLength+1+len(f.Data))
	binary.BigEndian.PutUint16(frame[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(frame[2:4], f.ProtocolID)
	binary.BigEndian.PutUint16(frame[4:6], f.Length)
	frame[6] = f.UnitID
	frame[7] = f.FunctionCode
	copy(frame[8:], f.Data)

	return frame
}

func DecodeFrame(data []byte) (*ModbusFrame, error) {
	if len(data) < mbapLength+1 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	frame := &ModbusFrame{
		TransactionID: binary.BigEndian.Uint16(data[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(data[2:4]),
		Length:        binary.BigEndian.Uint16(data[4:6]),
		UnitID:        data[6],
		FunctionCode:  data[7],
	}

	if frame.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("invalid protocol ID: 0x%04X", frame.ProtocolID)
	}
	if int(frame.Length) != len(data)-6 {
		return nil, fmt.Errorf("length mismatch: header says %d, got %d", frame.Length, len(data)-6)
	}

	if len(data) > mbapLength+1 {
		frame.Data = data[mbapLength+1:]
	}

	return frame, nil
}

// Exception returns the coupler's exception, if the frame carries one.
func (f *ModbusFrame) Exception() error {
	if f.FunctionCode&exceptionFlag == 0 {
		return nil
	}
	code := uint8(0)
	if len(f.Data) > 0 {
		code = f.Data[0]
	}
	return &ExceptionError{FunctionCode: f.FunctionCode &^ exceptionFlag, Code: code}
}

func readRequest(fc uint8, unitID uint8, startAddr, quantity uint16) *ModbusFrame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], quantity)

	return &ModbusFrame{UnitID: unitID, FunctionCode: fc, Data: data}
}

func ReadCoilsRequest(unitID uint8, startAddr, quantity uint16) *ModbusFrame {
	return readRequest(FuncCodeReadCoils, unitID, startAddr, quantity)
}

func ReadDiscreteInputsRequest(unitID uint8, startAddr, quantity uint16) *ModbusFrame {
	return readRequest(FuncCodeReadDiscreteInputs, unitID, startAddr, quantity)
}

func ReadHoldingRegistersRequest(unitID uint8, startAddr, quantity uint16) *ModbusFrame {
	return readRequest(FuncCodeReadHoldingRegisters, unitID, startAddr, quantity)
}

func ReadInputRegistersRequest(unitID uint8, startAddr, quantity uint16) *ModbusFrame {
	return readRequest(FuncCodeReadInputRegisters, unitID, startAddr, quantity)
}

func WriteSingleRegisterRequest(unitID uint8, addr uint16, value uint16) *ModbusFrame {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], value)

	return &ModbusFrame{UnitID: unitID, FunctionCode: FuncCodeWriteSingleRegister, Data: data}
}

// WriteMultipleCoilsRequest packs coils LSB first, eight per byte.
func WriteMultipleCoilsRequest(unitID uint8, startAddr uint16, coils []bool) *ModbusFrame {
	packed := packBits(coils)
	data := make([]byte, 5+len(packed))
	binary.BigEndian.PutUint16(data[0:2], startAddr)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(coils)))
	data[4] = byte(len(packed))
	copy(data[5:], packed)

	return &ModbusFrame{UnitID: unitID, FunctionCode: FuncCodeWriteMultipleCoils, Data: data}
}

// ParseRegisterResponse parses a holding or input register response.
func (f *ModbusFrame) ParseRegisterResponse() ([]uint16, error) {
	if err := f.Exception(); err != nil {
		return nil, err
	}
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := f.Data[0]
	if len(f.Data) < int(byteCount)+1 {
		return nil, fmt.Errorf("incomplete response data")
	}

	registerCount := byteCount / 2
	registers := make([]uint16, registerCount)
	for i := 0; i < int(registerCount); i++ {
		offset := 1 + (i * 2)
		registers[i] = binary.BigEndian.Uint16(f.Data[offset : offset+2])
	}

	return registers, nil
}

// ParseBitResponse parses a coil or discrete input response into quantity
// booleans.
func (f *ModbusFrame) ParseBitResponse(quantity uint16) ([]bool, error) {
	if err := f.Exception(); err != nil {
		return nil, err
	}
	if len(f.Data) < 1 {
		return nil, fmt.Errorf("response too short")
	}

	byteCount := int(f.Data[0])
	if len(f.Data) < byteCount+1 || byteCount*8 < int(quantity) {
		return nil, fmt.Errorf("incomplete response data")
	}

	return unpackBits(f.Data[1:1+byteCount], quantity), nil
}

func packBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return out
}

func unpackBits(data []byte, quantity uint16) []bool {
	out := make([]bool, quantity)
	for i := range out {
		out[i] = data[i/8]&(1<<(uint(i)%8)) != 0
	}
	return out
}
