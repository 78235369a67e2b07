//go:build ignore

// Генерирует иконки трея для пакета embedded (go generate ./embedded).
package main

import (
	"image"
	"image/color"
	"image/png"
	"log"
	"os"
	"path/filepath"
)

const size = 64

func main() {
	dir := "embedded"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	icons := map[string]color.RGBA{
		"icon_idle.png":      {128, 128, 128, 255},
		"icon_listening.png": {220, 50, 50, 255},
		"icon_stopping.png":  {230, 160, 50, 255},
	}
	for name, c := range icons {
		path := filepath.Join(dir, name)
		if err := writeIcon(path, c); err != nil {
			log.Fatalf("Ошибка генерации %s: %v", name, err)
		}
		log.Printf("Создан: %s", path)
	}
}

// inMicrophone - капсула микрофона, дуга держателя, стойка и основание.
func inMicrophone(x, y int) bool {
	fx, fy := float64(x)+0.5, float64(y)+0.5

	// капсула: прямоугольник 24..40 x 16..32 со скруглёнными концами
	if fx >= 24 && fx <= 40 && fy >= 16 && fy <= 32 {
		return true
	}
	for _, cy := range []float64{16, 32} {
		if dx, dy := fx-32, fy-cy; dx*dx+dy*dy <= 64 {
			return true
		}
	}

	// нижняя половина кольца 14..17 вокруг (32, 30)
	if fy >= 30 {
		dx, dy := fx-32, fy-30
		if d := dx*dx + dy*dy; d >= 14*14 && d <= 17*17 {
			return true
		}
	}

	// стойка и основание
	if fx >= 30 && fx <= 34 && fy >= 47 && fy <= 55 {
		return true
	}
	return fx >= 22 && fx <= 42 && fy >= 55 && fy <= 58
}

func writeIcon(path string, c color.RGBA) error {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if inMicrophone(x, y) {
				img.SetRGBA(x, y, c)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
