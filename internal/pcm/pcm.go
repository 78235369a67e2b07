// Package pcm работает с 16-битным mono PCM: кадры и WAV файлы.
package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// BytesPerSample - размер сэмпла PCM16.
const BytesPerSample = 2

// ErrUnsupported - формат WAV не поддерживается.
var ErrUnsupported = errors.New("неподдерживаемый формат WAV")

// Encode записывает сэмплы int16 в little-endian байты.
// dst должен вмещать len(samples)*2 байт.
func Encode(dst []byte, samples []int16) []byte {
	dst = dst[:len(samples)*BytesPerSample]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*BytesPerSample:], uint16(s))
	}
	return dst
}

// WAVReader отдаёт PCM16 mono байты из WAV файла.
// Многоканальный звук сводится в mono усреднением.
type WAVReader struct {
	dec        *wav.Decoder
	buf        *audio.IntBuffer
	channels   int
	sampleRate int
	pending    []byte
	eof        bool
	closer     io.Closer
}

// NewWAVReader проверяет заголовок и готовит чтение.
func NewWAVReader(r io.ReadSeeker) (*WAVReader, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: не WAV файл", ErrUnsupported)
	}
	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("%w: %d бит, нужен 16", ErrUnsupported, dec.BitDepth)
	}
	if dec.NumChans == 0 {
		return nil, fmt.Errorf("%w: нет каналов", ErrUnsupported)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	channels := int(dec.NumChans)
	return &WAVReader{
		dec: dec,
		buf: &audio.IntBuffer{
			Data:   make([]int, 2048*channels),
			Format: &audio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
		},
		channels:   channels,
		sampleRate: int(dec.SampleRate),
	}, nil
}

// OpenWAV открывает WAV файл. Закрыть через Close.
func OpenWAV(path string) (*WAVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewWAVReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// SampleRate возвращает частоту дискретизации файла.
func (r *WAVReader) SampleRate() int {
	return r.sampleRate
}

// Read реализует io.Reader над mono PCM16 данными.
func (r *WAVReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			return 0, err
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *WAVReader) fill() error {
	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("чтение WAV: %w", err)
	}
	if n == 0 {
		r.eof = true
		return nil
	}

	frames := n / r.channels
	out := make([]byte, frames*BytesPerSample)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < r.channels; c++ {
			sum += r.buf.Data[i*r.channels+c]
		}
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(int16(sum/r.channels)))
	}
	r.pending = out
	return nil
}

// Close закрывает файл, если он открыт через OpenWAV.
func (r *WAVReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
