package piper

import (
	"bytes"
	"encoding/binary"
)

// pcmFormat describes raw PCM audio.
type pcmFormat struct {
	Rate     int
	Channels int
	Width    int // bytes per sample
}

// wavHeader is the canonical 44-byte RIFF/WAVE header.
type wavHeader struct {
	RIFF          [4]byte
	FileLen       uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtLen        uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataLen       uint32
}

// encodeWAV wraps raw PCM data in a WAV container.
func encodeWAV(pcm []byte, f pcmFormat) []byte {
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		FileLen:       uint32(36 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtLen:        16,
		AudioFormat:   1,
		Channels:      uint16(f.Channels),
		SampleRate:    uint32(f.Rate),
		ByteRate:      uint32(f.Rate * f.Channels * f.Width),
		BlockAlign:    uint16(f.Channels * f.Width),
		BitsPerSample: uint16(f.Width * 8),
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataLen:       uint32(len(pcm)),
	}
	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	_ = binary.Write(buf, binary.LittleEndian, h)
	buf.Write(pcm)
	return buf.Bytes()
}
