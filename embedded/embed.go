// Package embedded содержит встроенные ресурсы приложения.
package embedded

import (
	_ "embed"
)

//go:generate go run ../scripts/generate_icons.go .

// IconIdle - распознавание остановлено (серая).
//
//go:embed icon_idle.png
var IconIdle []byte

// IconListening - идёт распознавание (красная).
//
//go:embed icon_listening.png
var IconListening []byte

// IconStopping - ожидание завершения воркера (оранжевая).
//
//go:embed icon_stopping.png
var IconStopping []byte
