package media

import (
	"encoding/binary"
	"io"
	"math"
	"os"
)

// measureDuration dispatches to a format-specific reader based on the
// file extension. Unknown formats measure as 0.
func measureDuration(f *os.File, ext string) float64 {
	switch ext {
	case "wav":
		return wavDuration(f)
	case "mp3":
		return mp3Duration(f)
	case "m4a", "aac":
		return mp4Duration(f)
	default:
		return 0
	}
}

// wavDuration walks the RIFF chunks and divides the data chunk size by
// the byte rate from the fmt chunk.
func wavDuration(f *os.File) float64 {
	var header [12]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return 0
	}

	var byteRate uint32
	var dataSize uint32
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			break
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			var fmtData [16]byte
			if size < 16 {
				return 0
			}
			if _, err := io.ReadFull(f, fmtData[:]); err != nil {
				return 0
			}
			byteRate = binary.LittleEndian.Uint32(fmtData[8:12])
			if skip := int64(size) - 16; skip > 0 {
				if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
					return 0
				}
			}
		case "data":
			dataSize = size
		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return 0
			}
		}

		if byteRate > 0 && dataSize > 0 {
			return float64(dataSize) / float64(byteRate)
		}
		if id == "data" {
			// data before fmt: skip payload and keep walking
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return 0
			}
		}
	}
	return 0
}

// mp3Bitrates is the MPEG-1 Layer III bitrate table, kbit/s.
var mp3Bitrates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}

// mp3Bitrates2 is the MPEG-2/2.5 Layer III bitrate table, kbit/s.
var mp3Bitrates2 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}

// mp3Duration estimates the duration from the first frame header's
// bitrate, assuming constant bitrate. An ID3v2 prefix is excluded
// from the payload size.
func mp3Duration(f *os.File) float64 {
	st, err := f.Stat()
	if err != nil {
		return 0
	}
	size := st.Size()

	var prefix [10]byte
	if _, err := io.ReadFull(f, prefix[:]); err != nil {
		return 0
	}

	var offset int64
	if string(prefix[0:3]) == "ID3" {
		// Syncsafe 28-bit tag size plus the 10-byte header
		tagSize := int64(prefix[6]&0x7F)<<21 | int64(prefix[7]&0x7F)<<14 |
			int64(prefix[8]&0x7F)<<7 | int64(prefix[9]&0x7F)
		offset = 10 + tagSize
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0
	}

	kbps := firstFrameBitrate(f)
	if kbps <= 0 {
		return 0
	}
	payload := size - offset
	if payload <= 0 {
		return 0
	}
	return float64(payload) * 8 / float64(kbps*1000)
}

// firstFrameBitrate scans forward for an MPEG audio frame sync and
// returns its bitrate in kbit/s, or 0 if none is found in the first
// 64 KiB.
func firstFrameBitrate(r io.Reader) int {
	buf := make([]byte, 64*1024)
	n, _ := io.ReadFull(r, buf)
	buf = buf[:n]

	for i := 0; i+3 < len(buf); i++ {
		if buf[i] != 0xFF || buf[i+1]&0xE0 != 0xE0 {
			continue
		}
		version := buf[i+1] >> 3 & 0x03 // 3 = MPEG-1
		layer := buf[i+1] >> 1 & 0x03
		bitrateIdx := buf[i+2] >> 4
		if layer == 0 || bitrateIdx == 0 || bitrateIdx == 15 {
			continue
		}
		if version == 3 {
			return mp3Bitrates[bitrateIdx]
		}
		return mp3Bitrates2[bitrateIdx]
	}
	return 0
}

// mp4Duration reads the mvhd box of an MP4/M4A container. Raw ADTS
// AAC streams have no container and measure as 0.
func mp4Duration(f *os.File) float64 {
	return scanBoxes(f, math.MaxInt64, []string{"moov", "mvhd"})
}

// scanBoxes walks ISO-BMFF boxes up to limit bytes, descending into
// the named path; the terminal box is parsed as mvhd.
func scanBoxes(f *os.File, limit int64, path []string) float64 {
	var consumed int64
	for consumed+8 <= limit {
		var head [8]byte
		if _, err := io.ReadFull(f, head[:]); err != nil {
			return 0
		}
		size := int64(binary.BigEndian.Uint32(head[0:4]))
		name := string(head[4:8])
		if size == 1 {
			var ext [8]byte
			if _, err := io.ReadFull(f, ext[:]); err != nil {
				return 0
			}
			size = int64(binary.BigEndian.Uint64(ext[:])) - 8
		}
		if size < 8 {
			return 0
		}

		if name == path[0] {
			if len(path) == 1 {
				return readMvhd(f)
			}
			return scanBoxes(f, size-8, path[1:])
		}
		if _, err := f.Seek(size-8, io.SeekCurrent); err != nil {
			return 0
		}
		consumed += size
	}
	return 0
}

// readMvhd parses the movie header box payload: timescale and duration
// at version-dependent offsets.
func readMvhd(f *os.File) float64 {
	var ver [4]byte
	if _, err := io.ReadFull(f, ver[:]); err != nil {
		return 0
	}
	if ver[0] == 1 {
		var body [24]byte // creation(8) + modification(8) + timescale(4) + duration... need 28
		if _, err := io.ReadFull(f, body[:]); err != nil {
			return 0
		}
		timescale := binary.BigEndian.Uint32(body[16:20])
		var durHi [8]byte
		copy(durHi[0:4], body[20:24])
		var rest [4]byte
		if _, err := io.ReadFull(f, rest[:]); err != nil {
			return 0
		}
		copy(durHi[4:8], rest[:])
		duration := binary.BigEndian.Uint64(durHi[:])
		if timescale == 0 {
			return 0
		}
		return float64(duration) / float64(timescale)
	}

	var body [16]byte // creation(4) + modification(4) + timescale(4) + duration(4)
	if _, err := io.ReadFull(f, body[:]); err != nil {
		return 0
	}
	timescale := binary.BigEndian.Uint32(body[8:12])
	duration := binary.BigEndian.Uint32(body[12:16])
	if timescale == 0 {
		return 0
	}
	return float64(duration) / float64(timescale)
}
