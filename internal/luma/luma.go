// Package luma implements the black-frame filter policy and the frame
// buffer sizing rule.
//
// The filter samples the luma plane at a uniform stride instead of averaging
// the whole frame. The stride formula and the comparison are part of the
// detection sensitivity and must not be replaced by a full-frame mean.
package luma

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSampleConfig is returned when the sample count yields no usable stride
	ErrInvalidSampleConfig = errors.New("invalid luma sample configuration")

	// ErrNonIntegralSize is returned by BufferSize when width*height*bpp is not a multiple of 8
	ErrNonIntegralSize = errors.New("non-integral buffer size")

	// ErrShortBuffer is returned when the buffer does not cover the sampled region
	ErrShortBuffer = errors.New("buffer shorter than sampled region")
)

// BufferSize returns ceil(width*height*bitsPerPixel/8).
//
// When the exact byte count is not integral the rounded-up size is returned
// together with ErrNonIntegralSize: a mismatch between pixel format and bit
// depth that callers treat as corruption.
func BufferSize(width, height, bitsPerPixel uint) (int, error) {
	bits := uint64(width) * uint64(height) * uint64(bitsPerPixel)
	size := int((bits + 7) / 8)
	if rem := bits % 8; rem != 0 {
		return size, fmt.Errorf("%w: %dx%d at %d bpp is %d bits (%d bits over a byte boundary)",
			ErrNonIntegralSize, width, height, bitsPerPixel, bits, rem)
	}
	return size, nil
}

// Stride returns floor(pixels/sampleCount).
//
// sampleCount must be non-zero and strictly below the pixel count.
func Stride(pixels uint64, sampleCount uint) (uint64, error) {
	if sampleCount == 0 {
		return 0, fmt.Errorf("%w: sample count must be > 0", ErrInvalidSampleConfig)
	}
	if uint64(sampleCount) >= pixels {
		return 0, fmt.Errorf("%w: sample count %d must be below pixel count %d",
			ErrInvalidSampleConfig, sampleCount, pixels)
	}
	return pixels / uint64(sampleCount), nil
}

// IsBlack reports whether the frame should be dropped as black.
//
// Exactly sampleCount bytes are read, at offsets 0, stride, 2*stride, ...
// with stride = floor(width*height/sampleCount). The frame is black iff the
// mean of those samples is below base+threshold.
func IsBlack(buf []byte, width, height, sampleCount uint, base, threshold uint8) (bool, error) {
	pixels := uint64(width) * uint64(height)
	stride, err := Stride(pixels, sampleCount)
	if err != nil {
		return false, err
	}

	last := stride * uint64(sampleCount-1)
	if last >= uint64(len(buf)) {
		return false, fmt.Errorf("%w: need offset %d, have %d bytes", ErrShortBuffer, last, len(buf))
	}

	var sum uint64
	for i, off := uint(0), uint64(0); i < sampleCount; i, off = i+1, off+stride {
		sum += uint64(buf[off])
	}

	// mean < base+threshold, kept in integers: sum < (base+threshold)*n
	limit := (uint64(base) + uint64(threshold)) * uint64(sampleCount)
	return sum < limit, nil
}
