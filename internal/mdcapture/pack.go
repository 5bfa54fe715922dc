package mdcapture

import (
	"fmt"
	"image"

	"github.com/CyberPuffer/HelloCamera"
)

// pixelKindOf maps a decoded image to the raw layout it is packed into
func pixelKindOf(img image.Image) (hellocamera.PixelKind, error) {
	switch m := img.(type) {
	case *image.YCbCr:
		switch m.SubsampleRatio {
		case image.YCbCrSubsampleRatio420, image.YCbCrSubsampleRatio422:
			return hellocamera.PixelI420, nil
		}
		return hellocamera.PixelUnknown, fmt.Errorf("unsupported chroma subsampling %v", m.SubsampleRatio)
	case *image.Gray:
		return hellocamera.PixelGray8, nil
	case *image.RGBA:
		return hellocamera.PixelRGBA, nil
	default:
		return hellocamera.PixelUnknown, fmt.Errorf("unsupported image type %T", img)
	}
}

// formatOf returns the device format of img
func formatOf(img image.Image, fps uint) (hellocamera.DeviceFormat, error) {
	kind, err := pixelKindOf(img)
	if err != nil {
		return hellocamera.DeviceFormat{}, err
	}
	b := img.Bounds()
	return hellocamera.DeviceFormat{
		Width:              uint(b.Dx()),
		Height:             uint(b.Dy()),
		FrameRateNumerator: fps,
		PixelKind:          kind,
	}, nil
}

// pack writes img in its raw layout into dst (grown as needed) and returns
// the filled slice. Luma always comes first, so the black-frame filter
// samples brightness for every supported layout except RGBA.
func pack(img image.Image, dst []byte) ([]byte, error) {
	switch m := img.(type) {
	case *image.YCbCr:
		return packI420(m, dst)
	case *image.Gray:
		return packRows(m.Pix, m.Stride, m.Rect.Dx(), m.Rect.Dy(), dst), nil
	case *image.RGBA:
		return packRows(m.Pix, m.Stride, 4*m.Rect.Dx(), m.Rect.Dy(), dst), nil
	default:
		return nil, fmt.Errorf("unsupported image type %T", img)
	}
}

// packI420 writes the Y plane followed by quarter-size Cb and Cr planes.
// 4:2:2 input keeps the chroma of every even row.
func packI420(m *image.YCbCr, dst []byte) ([]byte, error) {
	switch m.SubsampleRatio {
	case image.YCbCrSubsampleRatio420, image.YCbCrSubsampleRatio422:
	default:
		return nil, fmt.Errorf("unsupported chroma subsampling %v", m.SubsampleRatio)
	}

	w, h := m.Rect.Dx(), m.Rect.Dy()
	cw, ch := (w+1)/2, (h+1)/2
	dst = grow(dst, w*h+2*cw*ch)

	off := 0
	for y := 0; y < h; y++ {
		start := m.YOffset(m.Rect.Min.X, m.Rect.Min.Y+y)
		off += copy(dst[off:off+w], m.Y[start:start+w])
	}
	for _, plane := range [][]byte{m.Cb, m.Cr} {
		for j := 0; j < ch; j++ {
			// COffset takes pixel coordinates for both ratios
			start := m.COffset(m.Rect.Min.X, m.Rect.Min.Y+2*j)
			off += copy(dst[off:off+cw], plane[start:start+cw])
		}
	}
	return dst, nil
}

// packRows copies rowBytes from each of rows rows of a strided buffer
func packRows(pix []byte, stride, rowBytes, rows int, dst []byte) []byte {
	dst = grow(dst, rowBytes*rows)
	off := 0
	for y := 0; y < rows; y++ {
		off += copy(dst[off:off+rowBytes], pix[y*stride:y*stride+rowBytes])
	}
	return dst
}

func grow(dst []byte, size int) []byte {
	if cap(dst) < size {
		return make([]byte, size)
	}
	return dst[:size]
}
