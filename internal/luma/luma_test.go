package luma

import (
	"errors"
	"testing"
)

func TestBufferSize(t *testing.T) {
	testCases := []struct {
		name          string
		width, height uint
		bpp           uint
		want          int
		corrupt       bool
	}{
		{"nv12_640x480", 640, 480, 12, 460800, false},
		{"yuy2_1280x720", 1280, 720, 16, 1843200, false},
		{"rgba_2x2", 2, 2, 32, 16, false},
		{"nv12_odd_pixels", 3, 1, 12, 5, true},
		{"nv12_641x481", 641, 481, 12, 462482, true},
		{"zero", 0, 480, 12, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BufferSize(tc.width, tc.height, tc.bpp)
			if got != tc.want {
				t.Errorf("BufferSize() = %d, want %d", got, tc.want)
			}
			if tc.corrupt && !errors.Is(err, ErrNonIntegralSize) {
				t.Errorf("expected ErrNonIntegralSize, got %v", err)
			}
			if !tc.corrupt && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestStride(t *testing.T) {
	testCases := []struct {
		name    string
		pixels  uint64
		samples uint
		want    uint64
		wantErr bool
	}{
		{"100px_5samples", 100, 5, 20, false},
		{"vga_300samples", 640 * 480, 300, 1024, false},
		{"floor", 10, 3, 3, false},
		{"zero_samples", 100, 0, 0, true},
		{"samples_equal_pixels", 100, 100, 0, true},
		{"samples_above_pixels", 100, 101, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Stride(tc.pixels, tc.samples)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidSampleConfig) {
					t.Fatalf("expected ErrInvalidSampleConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Stride() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestIsBlack_Uniform(t *testing.T) {
	testCases := []struct {
		name  string
		fill  byte
		black bool
	}{
		{"all_zero", 0, true},
		{"just_below", 31, true},
		{"at_limit", 32, false},
		{"all_255", 255, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, 100)
			for i := range buf {
				buf[i] = tc.fill
			}
			got, err := IsBlack(buf, 10, 10, 5, 16, 16)
			if err != nil {
				t.Fatalf("IsBlack() error: %v", err)
			}
			if got != tc.black {
				t.Errorf("IsBlack(fill=%d) = %v, want %v", tc.fill, got, tc.black)
			}
		})
	}
}

// TestIsBlack_SamplesExactPositions marks every sampled offset bright and
// everything else dark. Only the positions 0, stride, ..., (n-1)*stride may
// contribute, so the mean must be exactly the marker value.
func TestIsBlack_SamplesExactPositions(t *testing.T) {
	testCases := []struct {
		width, height, samples uint
	}{
		{10, 10, 5},
		{10, 10, 99},
		{7, 3, 4},
		{640, 480, 300},
		{13, 17, 12},
	}

	for _, tc := range testCases {
		pixels := uint64(tc.width) * uint64(tc.height)
		stride := pixels / uint64(tc.samples)

		buf := make([]byte, pixels)
		for i := uint64(0); i < uint64(tc.samples); i++ {
			buf[i*stride] = 40
		}

		// Mean is 40 when only sampled positions are read.
		black, err := IsBlack(buf, tc.width, tc.height, tc.samples, 0, 40)
		if err != nil {
			t.Fatalf("%dx%d/%d: %v", tc.width, tc.height, tc.samples, err)
		}
		if black {
			t.Errorf("%dx%d/%d: unsampled bytes leaked into mean", tc.width, tc.height, tc.samples)
		}

		// A single unsampled marker must not change the result.
		if stride > 1 {
			buf[1] = 255
			for i := uint64(0); i < uint64(tc.samples); i++ {
				buf[i*stride] = 39
			}
			black, _ = IsBlack(buf, tc.width, tc.height, tc.samples, 0, 40)
			if !black {
				t.Errorf("%dx%d/%d: offset 1 was sampled", tc.width, tc.height, tc.samples)
			}
		}
	}
}

func TestIsBlack_ThresholdDoesNotOverflow(t *testing.T) {
	buf := make([]byte, 100)
	for i := range buf {
		buf[i] = 255
	}
	// 200+200 does not fit a byte; the comparison must still say black.
	black, err := IsBlack(buf, 10, 10, 5, 200, 200)
	if err != nil {
		t.Fatalf("IsBlack() error: %v", err)
	}
	if !black {
		t.Error("expected black for mean 255 < 400")
	}
}

func TestIsBlack_Errors(t *testing.T) {
	if _, err := IsBlack(make([]byte, 100), 10, 10, 100, 16, 16); !errors.Is(err, ErrInvalidSampleConfig) {
		t.Errorf("samples == pixels: expected ErrInvalidSampleConfig, got %v", err)
	}
	if _, err := IsBlack(make([]byte, 10), 10, 10, 5, 16, 16); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("short buffer: expected ErrShortBuffer, got %v", err)
	}
}
