// Package aac builds ADTS headers for AAC-LC payloads sent to the viewer.
// The core never touches the raw AAC bitstream itself; it only prefixes
// each packet the audio source hands it with the 7-byte framing header a
// standalone decoder needs.
package aac

import "fmt"

// Profile is fixed at LC (Low Complexity); the core never emits HE-AAC.
const profileLC = 1

// sampleRateTable maps an MPEG-4 sampling frequency to its ADTS index.
var sampleRateTable = map[uint32]uint8{
	96000: 0,
	88200: 1,
	64000: 2,
	48000: 3,
	44100: 4,
	32000: 5,
	24000: 6,
	22050: 7,
	16000: 8,
	12000: 9,
	11025: 10,
	8000:  11,
	7350:  12,
}

// SampleRateIndex returns the ADTS sampling-frequency index for rate, or
// false if rate is not one of the thirteen MPEG-4 defined rates.
func SampleRateIndex(rate uint32) (uint8, bool) {
	idx, ok := sampleRateTable[rate]
	return idx, ok
}

// BuildHeader returns a 7-byte ADTS header for one AAC-LC raw_data_block of
// the given length, sample rate, and channel count. buffer-fullness is
// fixed at 0x7FF (VBR) and raw_data_blocks_in_frame at 0, matching a
// single-AU-per-ADTS-frame stream.
func BuildHeader(payloadLen int, sampleRate uint32, channels uint8) ([7]byte, error) {
	var hdr [7]byte
	srIdx, ok := SampleRateIndex(sampleRate)
	if !ok {
		return hdr, fmt.Errorf("aac: unsupported sample rate %d", sampleRate)
	}
	if channels == 0 || channels > 7 {
		return hdr, fmt.Errorf("aac: invalid channel count %d", channels)
	}
	frameLen := payloadLen + len(hdr)
	if frameLen > 0x1FFF {
		return hdr, fmt.Errorf("aac: frame too large for ADTS 13-bit length field: %d", frameLen)
	}

	// Byte 0: syncword high (0xFF)
	hdr[0] = 0xFF
	// Byte 1: syncword low (0xF0) | MPEG-4 (0) | layer (00) | protection_absent (1, no CRC)
	hdr[1] = 0xF1
	// Byte 2: profile(2 bits) | sampling_freq_index(4 bits) | private_bit(1) | channel_cfg high bit(1)
	hdr[2] = (profileLC << 6) | (srIdx << 2) | ((channels >> 2) & 0x01)
	// Byte 3: channel_cfg low 2 bits | original/copy | home | copyright_id_bit | copyright_id_start | frame_len high 2 bits
	hdr[3] = ((channels & 0x03) << 6) | byte((frameLen>>11)&0x03)
	// Byte 4: frame_len middle 8 bits
	hdr[4] = byte((frameLen >> 3) & 0xFF)
	// Byte 5: frame_len low 3 bits | buffer_fullness high 5 bits (0x7FF = 11 bits all set)
	hdr[5] = byte((frameLen&0x07)<<5) | 0x1F
	// Byte 6: buffer_fullness low 6 bits | raw_data_blocks_in_frame (0)
	hdr[6] = 0xFC

	return hdr, nil
}

// Frame prefixes payload with its ADTS header, returning a single buffer
// ready to write to the wire as an AUDIO_FRAME payload.
func Frame(payload []byte, sampleRate uint32, channels uint8) ([]byte, error) {
	hdr, err := BuildHeader(len(payload), sampleRate, channels)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(hdr)+len(payload))
	out = append(out, hdr[:]...)
	out = append(out, payload...)
	return out, nil
}
