package vosk

// #cgo LDFLAGS: -lvosk
// #include <vosk_api.h>
import "C"

import (
	"unsafe"

	vosk "github.com/alphacep/vosk-api/go"
)

// Обёртки vosk-api хранят нативный указатель единственным полем,
// поэтому он лежит по нулевому смещению структуры.

func nativeModel(m *vosk.VoskModel) unsafe.Pointer {
	if m == nil {
		return nil
	}
	return *(*unsafe.Pointer)(unsafe.Pointer(m))
}

func nativeSpkModel(m *vosk.VoskSpkModel) unsafe.Pointer {
	if m == nil {
		return nil
	}
	return *(*unsafe.Pointer)(unsafe.Pointer(m))
}

func nativeRecognizer(r *vosk.VoskRecognizer) *C.VoskRecognizer {
	if r == nil {
		return nil
	}
	return *(**C.VoskRecognizer)(unsafe.Pointer(r))
}

// setNLSML включает вывод NLSML. В vosk-api для Go этого вызова нет.
func setNLSML(r *vosk.VoskRecognizer, enabled int) {
	if rec := nativeRecognizer(r); rec != nil {
		C.vosk_recognizer_set_nlsml(rec, C.int(enabled))
	}
}
