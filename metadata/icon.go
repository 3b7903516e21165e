package metadata

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func initCodec() {
	encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if codecErr != nil {
		return
	}
	decoder, codecErr = zstd.NewReader(nil)
}

// EncodeIcon compresses an icon blob for storage. An empty icon encodes to nil.
func EncodeIcon(icon []byte) ([]byte, error) {
	if len(icon) == 0 {
		return nil, nil
	}
	codecOnce.Do(initCodec)
	if codecErr != nil {
		return nil, fmt.Errorf("failed to initialize icon codec: %w", codecErr)
	}
	return encoder.EncodeAll(icon, make([]byte, 0, len(icon)/2)), nil
}

// DecodeIcon reverses EncodeIcon.
func DecodeIcon(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	codecOnce.Do(initCodec)
	if codecErr != nil {
		return nil, fmt.Errorf("failed to initialize icon codec: %w", codecErr)
	}
	icon, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decode icon: %w", err)
	}
	return icon, nil
}
