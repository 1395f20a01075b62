package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeReadDiscreteInputs(t *testing.T) {
	f := ReadDiscreteInputsRequest(1, 0, 16)
	f.TransactionID = 0x0102
	assert.Equal(t, []byte{
		0x01, 0x02, // transaction
		0x00, 0x00, // protocol
		0x00, 0x06, // length
		0x01,       // unit
		0x02,       // function
		0x00, 0x00, // start
		0x00, 0x10, // quantity
	}, f.Encode())
}

func TestEncodeWriteMultipleCoils(t *testing.T) {
	f := WriteMultipleCoilsRequest(1, 0, []bool{true, false, true, true, false, false, false, false, true})
	f.TransactionID = 7
	assert.Equal(t, []byte{
		0x00, 0x07, 0x00, 0x00, 0x00, 0x09, 0x01,
		0x0F,
		0x00, 0x00, // start
		0x00, 0x09, // quantity
		0x02,       // byte count
		0x0D, 0x01, // packed LSB first
	}, f.Encode())
}

func TestDecodeBitResponse(t *testing.T) {
	raw := []byte{0x00, 0x03, 0x00, 0x00, 0x00, 0x05, 0x01, 0x02, 0x02, 0x05, 0x01}
	f, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), f.TransactionID)

	bits, err := f.ParseBitResponse(10)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, false, false, false, false, false, true, false}, bits)

	_, err = f.ParseBitResponse(17)
	assert.Error(t, err)
}

func TestDecodeRegisterResponse(t *testing.T) {
	raw := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x07, 0x01, 0x04, 0x04, 0x01, 0x2C, 0xFF, 0xFF}
	f, err := DecodeFrame(raw)
	require.NoError(t, err)
	regs, err := f.ParseRegisterResponse()
	require.NoError(t, err)
	assert.Equal(t, []uint16{300, 0xFFFF}, regs)
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	_, err := DecodeFrame([]byte{0x00, 0x01})
	assert.Error(t, err)

	_, err = DecodeFrame([]byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x02, 0x01, 0x03})
	assert.ErrorContains(t, err, "protocol")

	_, err = DecodeFrame([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x09, 0x01, 0x03})
	assert.ErrorContains(t, err, "length")
}

func TestExceptionResponse(t *testing.T) {
	raw := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x03, 0x01, 0x82, 0x02}
	f, err := DecodeFrame(raw)
	require.NoError(t, err)

	_, err = f.ParseBitResponse(8)
	var exc *ExceptionError
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, uint8(FuncCodeReadDiscreteInputs), exc.FunctionCode)
	assert.Equal(t, uint8(0x02), exc.Code)
}

func TestPackUnpackBits(t *testing.T) {
	bits := []bool{true, true, false, false, true, false, true, false, false, true, true}
	assert.Equal(t, bits, unpackBits(packBits(bits), uint16(len(bits))))
}
