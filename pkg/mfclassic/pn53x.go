package mfclassic

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/barnettlynn/nfctools/pkg/crypto1"
)

// PN53x command codes (PN532 User Manual §7).
const (
	pn53xReadRegister        = 0x06
	pn53xWriteRegister       = 0x08
	pn53xRFConfiguration     = 0x32
	pn53xInCommunicateThru   = 0x42
	pn53xInListPassiveTarget = 0x4A
)

// PN53x CIU registers and bits used for raw Mifare framing.
const (
	regTxMode     = 0x6302
	regRxMode     = 0x6303
	regManualRCV  = 0x630D
	regStatus2    = 0x6338
	regControl    = 0x633C
	regBitFraming = 0x633D

	bitCRCEnable     = 0x80 // TxMode/RxMode
	bitParityDisable = 0x10 // ManualRCV
	bitMFCrypto1On   = 0x08 // Status2
	maskLastBits     = 0x07 // Control RxLastBits, BitFraming TxLastBits
)

const (
	tfiHostToPN53x = 0xD4
	tfiPN53xToHost = 0xD5
)

// PN53xTransceiver drives a PN53x reader chip, as found in the ACR122U,
// through PC/SC direct-transmit pseudo-APDUs. It disables the chip's own
// Crypto1 and, for raw frames, its CRC and parity handling so every bit on the
// air is under host control.
type PN53xTransceiver struct {
	card    Card
	regs    map[uint16]byte
	timeout byte
}

// NewPN53xTransceiver returns a transceiver sending commands through card.
func NewPN53xTransceiver(card Card) *PN53xTransceiver {
	return &PN53xTransceiver{card: card, regs: make(map[uint16]byte)}
}

// command wraps a PN53x command in an ACR122U direct-transmit APDU
// (FF 00 00 00 Lc D4 cmd params) and returns the answer after D5 cmd+1.
func (p *PN53xTransceiver) command(cmd byte, params ...byte) ([]byte, error) {
	payload := append([]byte{tfiHostToPN53x, cmd}, params...)
	if len(payload) > 0xFF {
		return nil, fmt.Errorf("pn53x command 0x%02X too long: %d bytes", cmd, len(payload))
	}
	apdu := make([]byte, 0, 5+len(payload))
	apdu = append(apdu, 0xFF, 0x00, 0x00, 0x00, byte(len(payload)))
	apdu = append(apdu, payload...)

	resp, sw, err := transmit(p.card, apdu)
	if err != nil {
		return nil, err
	}
	if sw != SWSuccess {
		return nil, fmt.Errorf("pn53x command 0x%02X: reader returned SW=0x%04X", cmd, sw)
	}
	if len(resp) < 2 || resp[0] != tfiPN53xToHost || resp[1] != cmd+1 {
		return nil, fmt.Errorf("pn53x command 0x%02X: unexpected answer % X", cmd, resp)
	}
	return resp[2:], nil
}

func (p *PN53xTransceiver) readRegister(addr uint16) (byte, error) {
	if v, ok := p.regs[addr]; ok {
		return v, nil
	}
	resp, err := p.command(pn53xReadRegister, byte(addr>>8), byte(addr))
	if err != nil {
		return 0, err
	}
	if len(resp) < 1 {
		return 0, fmt.Errorf("read register 0x%04X: empty answer", addr)
	}
	p.regs[addr] = resp[0]
	return resp[0], nil
}

// setRegisterBits writes (current &^ mask) | value, skipping the write when
// the cached value already matches.
func (p *PN53xTransceiver) setRegisterBits(addr uint16, mask, value byte) error {
	cur, err := p.readRegister(addr)
	if err != nil {
		return err
	}
	next := cur&^mask | value&mask
	if next == cur {
		return nil
	}
	if _, err := p.command(pn53xWriteRegister, byte(addr>>8), byte(addr), next); err != nil {
		return err
	}
	p.regs[addr] = next
	return nil
}

// ActivateField switches the RF field on.
func (p *PN53xTransceiver) ActivateField() error {
	_, err := p.command(pn53xRFConfiguration, 0x01, 0x01)
	return err
}

// DeactivateField switches the RF field off. The chip resets its CIU
// registers when the target is released, so the register cache is dropped.
func (p *PN53xTransceiver) DeactivateField() error {
	p.regs = make(map[uint16]byte)
	_, err := p.command(pn53xRFConfiguration, 0x01, 0x00)
	return err
}

// DetectCard selects one ISO 14443-A target at 106 kbps. timeout bounds the
// passive activation retries, see passiveRetries.
func (p *PN53xTransceiver) DetectCard(timeout time.Duration) (*DeviceInfo, error) {
	if _, err := p.command(pn53xRFConfiguration, 0x05, 0xFF, 0x01, passiveRetries(timeout)); err != nil {
		return nil, err
	}
	resp, err := p.command(pn53xInListPassiveTarget, 0x01, 0x00)
	if err != nil {
		return nil, err
	}
	// NbTg Tg SENS_RES(2) SEL_RES NFCIDLength NFCID...
	if len(resp) < 1 || resp[0] == 0 {
		return nil, ErrNoTag
	}
	if len(resp) < 6 || len(resp) < 6+int(resp[5]) {
		return nil, fmt.Errorf("short target data: % X", resp)
	}
	info := &DeviceInfo{
		ATQA: [2]byte{resp[2], resp[3]},
		SAK:  resp[4],
		UID:  append([]byte(nil), resp[6:6+int(resp[5])]...),
	}
	slog.Debug("card detected", "uid", fmt.Sprintf("% X", info.UID), "sak", fmt.Sprintf("%02X", info.SAK))
	return info, nil
}

// Transceive sends one frame with InCommunicateThru.
func (p *PN53xTransceiver) Transceive(tx Frame, framing Framing, timeout time.Duration) (Frame, error) {
	if err := p.configure(framing, timeout); err != nil {
		return Frame{}, err
	}

	data, bits := tx.Data, tx.BitLen()
	if framing == FramingRaw {
		data, bits = wrapFrame(tx.Data, tx.Parity, bits)
	}
	if err := p.setRegisterBits(regBitFraming, maskLastBits, byte(bits%8)); err != nil {
		return Frame{}, err
	}

	resp, err := p.command(pn53xInCommunicateThru, data...)
	if err != nil {
		return Frame{}, err
	}
	if len(resp) < 1 {
		return Frame{}, fmt.Errorf("pn53x InCommunicateThru: empty answer")
	}
	if status := resp[0] & 0x3F; status != PN53xOK {
		return Frame{}, &PN53xError{Cmd: pn53xInCommunicateThru, Status: status}
	}
	rx := resp[1:]
	if len(rx) == 0 {
		return Frame{}, ErrNoResponse
	}

	// RxLastBits is volatile, bypass the cache.
	delete(p.regs, regControl)
	ctrl, err := p.readRegister(regControl)
	if err != nil {
		return Frame{}, err
	}
	rxBits := len(rx) * 8
	if last := int(ctrl & maskLastBits); last != 0 {
		rxBits = (len(rx)-1)*8 + last
	}

	if framing == FramingRaw {
		d, par, n := unwrapFrame(rx, rxBits)
		return Frame{Data: d, Parity: par, Bits: n}, nil
	}
	return Frame{Data: rx, Parity: crypto1.OddParity(rx), Bits: rxBits}, nil
}

func (p *PN53xTransceiver) configure(framing Framing, timeout time.Duration) error {
	if code := pn53xTimeoutCode(timeout); code != p.timeout {
		if _, err := p.command(pn53xRFConfiguration, 0x02, 0x00, 0x0B, code); err != nil {
			return err
		}
		p.timeout = code
	}

	var txCRC, rxCRC, parity byte
	switch framing {
	case FramingCRC:
		txCRC, rxCRC = bitCRCEnable, bitCRCEnable
	case FramingTxCRC:
		txCRC = bitCRCEnable
	case FramingRaw:
		parity = bitParityDisable
	}
	if err := p.setRegisterBits(regTxMode, bitCRCEnable, txCRC); err != nil {
		return err
	}
	if err := p.setRegisterBits(regRxMode, bitCRCEnable, rxCRC); err != nil {
		return err
	}
	if err := p.setRegisterBits(regManualRCV, bitParityDisable, parity); err != nil {
		return err
	}
	return p.setRegisterBits(regStatus2, bitMFCrypto1On, 0)
}

// passiveRetries converts a detection timeout into the MxRtyPassiveActivation
// count, one retry per 100ms. The result stays in 1..0xFE since 0xFF retries
// forever.
func passiveRetries(d time.Duration) byte {
	n := d / (100 * time.Millisecond)
	switch {
	case n < 1:
		return 1
	case n > 0xFE:
		return 0xFE
	}
	return byte(n)
}

// pn53xTimeoutCode returns the smallest RFConfiguration timeout code n with
// 100µs * 2^(n-1) >= d.
func pn53xTimeoutCode(d time.Duration) byte {
	step := 100 * time.Microsecond
	for n := byte(1); n < 0x10; n++ {
		if step >= d {
			return n
		}
		step *= 2
	}
	return 0x10
}

// wrapFrame interleaves host parity into a frame for a chip with parity
// generation off. Bits go out LSB first: eight data bits, then the parity bit
// of that byte. Frames shorter than a byte carry no parity.
func wrapFrame(data, parity []byte, bits int) ([]byte, int) {
	if bits < 8 {
		return append([]byte(nil), data[:1]...), bits
	}
	frameBits := bits + bits/8
	out := make([]byte, (frameBits+7)/8)
	pos := 0
	put := func(b byte) {
		if b&0x01 != 0 {
			out[pos/8] |= 1 << uint(pos%8)
		}
		pos++
	}
	for i := 0; i < bits; i++ {
		put(data[i/8] >> uint(i%8))
		if i%8 == 7 {
			var par byte
			if i/8 < len(parity) {
				par = parity[i/8]
			}
			put(par)
		}
	}
	return out, frameBits
}

// unwrapFrame splits a received frame into data bytes and parity bits. It
// returns the data, one parity bit per complete byte and the data bit count.
func unwrapFrame(frame []byte, frameBits int) ([]byte, []byte, int) {
	if frameBits < 9 {
		return append([]byte(nil), frame[:1]...), nil, frameBits
	}
	dataBits := frameBits/9*8 + frameBits%9
	data := make([]byte, (dataBits+7)/8)
	parity := make([]byte, frameBits/9)
	for i := 0; i < frameBits; i++ {
		bit := frame[i/8] >> uint(i%8) & 0x01
		group, pos := i/9, i%9
		if pos == 8 {
			parity[group] = bit
			continue
		}
		idx := group*8 + pos
		data[idx/8] |= bit << uint(idx%8)
	}
	return data, parity, dataBits
}
