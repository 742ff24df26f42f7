package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WAV format tags.
const (
	formatPCM       = 1
	formatIEEEFloat = 3
)

// Supported PCM bit depths for encoding.
const (
	// Depth16 encodes 16-bit signed integer PCM.
	Depth16 = 16

	// Depth32 encodes 32-bit IEEE float PCM.
	Depth32 = 32
)

// RIFF chunk layout sizes.
const (
	riffHeaderSize = 12
	chunkHeaderSize = 8
	fmtChunkSize   = 16
)

// int16Scale maps [-1.0, 1.0] onto the signed 16-bit range.
const int16Scale = 32767.0

// int24Scale maps [-1.0, 1.0] onto the signed 24-bit range.
const int24Scale = 8388607.0

// int32Scale maps [-1.0, 1.0] onto the signed 32-bit range.
const int32Scale = 2147483647.0

// ErrNotWAV is returned when the input lacks a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a RIFF/WAVE file")

// ErrWAVFormat is returned for WAV files the decoder does not support.
var ErrWAVFormat = errors.New("unsupported WAV format")

// ErrWAVTruncated is returned when a chunk extends past the end of the data.
var ErrWAVTruncated = errors.New("truncated WAV data")

// EncodeWAV serializes the buffer as a linear PCM WAV file. depth selects
// 16-bit integer or 32-bit float samples. Samples are clipped at ±1.0.
func EncodeWAV(b *Buffer, depth int) ([]byte, error) {
	if depth != Depth16 && depth != Depth32 {
		return nil, fmt.Errorf("%w: %d-bit encode", ErrWAVFormat, depth)
	}

	channels := b.Channels()
	frames := b.Frames()
	bytesPerSample := depth / 8
	dataSize := frames * channels * bytesPerSample

	var out bytes.Buffer

	out.Grow(riffHeaderSize + chunkHeaderSize + fmtChunkSize + chunkHeaderSize + dataSize)

	// RIFF header.
	out.WriteString("RIFF")
	writeU32(&out, uint32(4+chunkHeaderSize+fmtChunkSize+chunkHeaderSize+dataSize))
	out.WriteString("WAVE")

	// fmt chunk.
	format := formatPCM
	if depth == Depth32 {
		format = formatIEEEFloat
	}

	out.WriteString("fmt ")
	writeU32(&out, fmtChunkSize)
	writeU16(&out, uint16(format))
	writeU16(&out, uint16(channels))
	writeU32(&out, uint32(b.Rate))
	writeU32(&out, uint32(b.Rate*channels*bytesPerSample))
	writeU16(&out, uint16(channels*bytesPerSample))
	writeU16(&out, uint16(depth))

	// data chunk, interleaved.
	out.WriteString("data")
	writeU32(&out, uint32(dataSize))

	for i := range frames {
		for ch := range channels {
			sample := clip(b.Samples[ch][i])

			if depth == Depth16 {
				writeU16(&out, uint16(int16(math.Round(sample*int16Scale))))

				continue
			}

			writeU32(&out, math.Float32bits(float32(sample)))
		}
	}

	return out.Bytes(), nil
}

// DecodeWAV parses a WAV file into a buffer. Supported sample formats:
// 16/24/32-bit integer PCM and 32-bit IEEE float.
func DecodeWAV(name string, data []byte) (*Buffer, error) {
	if len(data) < riffHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		format, channels, depth int
		rate                    int
		pcm                     []byte
		haveFmt                 bool
	)

	offset := riffHeaderSize
	for offset+chunkHeaderSize <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + chunkHeaderSize

		if body+chunkSize > len(data) {
			return nil, ErrWAVTruncated
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < fmtChunkSize {
				return nil, fmt.Errorf("%w: fmt chunk size %d", ErrWAVFormat, chunkSize)
			}

			format = int(binary.LittleEndian.Uint16(data[body : body+2]))
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			rate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			depth = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body : body+chunkSize]
		}

		// Chunks are word-aligned.
		offset = body + chunkSize + chunkSize%2
	}

	if !haveFmt || pcm == nil {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrNotWAV)
	}

	if channels != Mono && channels != Stereo {
		return nil, fmt.Errorf("%w: %d channels", ErrWAVFormat, channels)
	}

	return decodeSamples(name, format, channels, rate, depth, pcm)
}

func decodeSamples(name string, format, channels, rate, depth int, pcm []byte) (*Buffer, error) {
	bytesPerSample := depth / 8
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("%w: %d-bit samples", ErrWAVFormat, depth)
	}

	frames := len(pcm) / (bytesPerSample * channels)

	buf, err := NewBuffer(name, channels, rate, frames)
	if err != nil {
		return nil, err
	}

	read, err := sampleReader(format, depth)
	if err != nil {
		return nil, err
	}

	pos := 0
	for i := range frames {
		for ch := range channels {
			buf.Samples[ch][i] = read(pcm[pos:])
			pos += bytesPerSample
		}
	}

	return buf, nil
}

// sampleReader returns a decoder for one sample at the start of a byte slice.
func sampleReader(format, depth int) (func([]byte) float64, error) {
	switch {
	case format == formatPCM && depth == 16:
		return func(p []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(p))) / int16Scale
		}, nil
	case format == formatPCM && depth == 24:
		return func(p []byte) float64 {
			v := int32(p[0]) | int32(p[1])<<8 | int32(p[2])<<16
			// Sign-extend from 24 bits.
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF)
			}

			return float64(v) / int24Scale
		}, nil
	case format == formatPCM && depth == 32:
		return func(p []byte) float64 {
			return float64(int32(binary.LittleEndian.Uint32(p))) / int32Scale
		}, nil
	case format == formatIEEEFloat && depth == 32:
		return func(p []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
		}, nil
	default:
		return nil, fmt.Errorf("%w: format %d, %d-bit", ErrWAVFormat, format, depth)
	}
}

func clip(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}

	if v < -1.0 {
		return -1.0
	}

	return v
}

func writeU16(out *bytes.Buffer, v uint16) {
	var tmp [2]byte

	binary.LittleEndian.PutUint16(tmp[:], v)
	out.Write(tmp[:])
}

func writeU32(out *bytes.Buffer, v uint32) {
	var tmp [4]byte

	binary.LittleEndian.PutUint32(tmp[:], v)
	out.Write(tmp[:])
}
