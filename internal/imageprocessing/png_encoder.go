package imageprocessing

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image/png"
	"io"

	"github.com/rmitchellscott/ditherbox/internal/dither"
)

// ErrNotBinarized is returned when a monochrome encode is asked for a raster
// that still holds intermediate grays.
var ErrNotBinarized = errors.New("raster is not black and white")

// EncodePNG writes the raster as an 8-bit RGBA PNG, keeping alpha.
func EncodePNG(w io.Writer, r *dither.Raster) error {
	if err := r.Validate(); err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(w, FromRaster(r)); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// EncodeMonochromePNG encodes a binarized raster as a 1-bit grayscale PNG
// (color type 0). Alpha is dropped. Every pixel must be pure black or white.
func EncodeMonochromePNG(r *dither.Raster) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if !r.IsBinary() {
		return nil, ErrNotBinarized
	}

	var buf bytes.Buffer

	// PNG signature
	buf.Write([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})

	writeChunk(&buf, "IHDR", func(data *bytes.Buffer) {
		binary.Write(data, binary.BigEndian, uint32(r.Width))
		binary.Write(data, binary.BigEndian, uint32(r.Height))
		data.WriteByte(1) // Bit depth
		data.WriteByte(0) // Color type: Grayscale
		data.WriteByte(0) // Compression method
		data.WriteByte(0) // Filter method
		data.WriteByte(0) // Interlace method
	})

	compressedData, err := zlibCompress(packMonochromeRows(r))
	if err != nil {
		return nil, fmt.Errorf("failed to compress image data: %w", err)
	}

	writeChunk(&buf, "IDAT", func(data *bytes.Buffer) {
		data.Write(compressedData)
	})

	writeChunk(&buf, "IEND", func(data *bytes.Buffer) {})

	return buf.Bytes(), nil
}

// packMonochromeRows packs one bit per pixel, most significant bit first,
// with a leading filter byte on every row. White is 1.
func packMonochromeRows(r *dither.Raster) []byte {
	bytesPerRow := (r.Width + 7) / 8
	data := make([]byte, r.Height*(bytesPerRow+1))

	for y := 0; y < r.Height; y++ {
		rowStart := y * (bytesPerRow + 1)
		data[rowStart] = 0 // Filter type: None

		for x := 0; x < r.Width; x++ {
			if r.Pix[r.Offset(x, y)] == 255 {
				data[rowStart+1+x/8] |= 0x80 >> (x % 8)
			}
		}
	}
	return data
}

// writeChunk writes a PNG chunk with proper CRC
func writeChunk(buf *bytes.Buffer, chunkType string, dataWriter func(*bytes.Buffer)) {
	var chunkData bytes.Buffer
	dataWriter(&chunkData)

	data := chunkData.Bytes()

	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.WriteString(chunkType)
	buf.Write(data)

	crc := crc32.NewIEEE()
	crc.Write([]byte(chunkType))
	crc.Write(data)
	binary.Write(buf, binary.BigEndian, crc.Sum32())
}

// zlibCompress compresses data using proper zlib compression
func zlibCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zlib writer: %w", err)
	}

	return buf.Bytes(), nil
}
