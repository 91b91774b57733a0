package radar

import "encoding/binary"

// Outbound command words.
const (
	CmdEnterConfig  uint16 = 0x00FF
	CmdSetBaudRate  uint16 = 0x00A1
	CmdFactoryReset uint16 = 0x00A2
	CmdRestart      uint16 = 0x00A3
)

// BaudIndex9600 is the set-baud payload selecting 9600 baud.
const BaudIndex9600 uint16 = 0x0001

var (
	cmdPreamble  = [4]byte{0xFD, 0xFC, 0xFB, 0xFA}
	cmdPostamble = [4]byte{0x04, 0x03, 0x02, 0x01}
)

// EncodeCommand builds an outbound command frame:
// preamble, u16 length (payload + 2), u16 command word, payload, postamble.
func EncodeCommand(cmd uint16, payload []byte) []byte {
	out := make([]byte, 0, len(cmdPreamble)+4+len(payload)+len(cmdPostamble))
	out = append(out, cmdPreamble[:]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(payload)+2))
	out = binary.LittleEndian.AppendUint16(out, cmd)
	out = append(out, payload...)
	out = append(out, cmdPostamble[:]...)
	return out
}

// EnterConfigCommand enables configuration mode.
func EnterConfigCommand() []byte {
	return EncodeCommand(CmdEnterConfig, []byte{0x01, 0x00})
}

// FactoryResetCommand restores the sensor's factory settings.
func FactoryResetCommand() []byte {
	return EncodeCommand(CmdFactoryReset, nil)
}

// SetBaudRateCommand selects the sensor's baud rate by index.
func SetBaudRateCommand(index uint16) []byte {
	return EncodeCommand(CmdSetBaudRate, binary.LittleEndian.AppendUint16(nil, index))
}

// RestartCommand reboots the sensor module.
func RestartCommand() []byte {
	return EncodeCommand(CmdRestart, nil)
}
