package filters

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcapture/ir/raw"
)

var ErrPredictor = errors.New("predictor")

const maxColors = 32

// applyPredictor reverses the TIFF (2) or PNG (10-15) predictor described by
// a Flate /DecodeParms dictionary.
func applyPredictor(data []byte, params raw.Dict) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	predictor, _ := params.Int("Predictor")
	if predictor <= 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	if colors < 1 || colors > maxColors || columns < 1 {
		return nil, fmt.Errorf("%w: invalid parameters", ErrPredictor)
	}
	switch bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, fmt.Errorf("%w: %d bits per component", ErrPredictor, bpc)
	}
	if len(data) == 0 {
		return data, nil
	}
	// A row never holds more bits than the data does.
	pixelBits := colors * bpc
	if columns > len(data)*8/pixelBits {
		return nil, fmt.Errorf("%w: %d columns exceed %d bytes of data", ErrPredictor, columns, len(data))
	}
	bpp := (pixelBits + 7) / 8
	rowLen := (pixelBits*columns + 7) / 8

	switch {
	case predictor == 2:
		if bpc != 8 {
			return nil, fmt.Errorf("%w: TIFF predictor with %d bits per component", ErrPredictor, bpc)
		}
		out := append([]byte(nil), data...)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[row+i] += out[row+i-bpp]
			}
		}
		return out, nil
	case predictor >= 10:
		return unPNG(data, rowLen, bpp)
	}
	return nil, fmt.Errorf("%w: unknown predictor %d", ErrPredictor, predictor)
}

func intParam(d raw.Dict, key string, def int) int {
	if v, ok := d.Int(key); ok {
		return int(v)
	}
	return def
}

func unPNG(data []byte, rowLen, bpp int) ([]byte, error) {
	stride := rowLen + 1
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		line := data[r*stride : (r+1)*stride]
		tag := line[0]
		copy(cur, line[1:])
		for i := 0; i < rowLen; i++ {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch tag {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("%w: bad PNG row filter %d", ErrPredictor, tag)
			}
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
