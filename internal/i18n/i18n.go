// Package i18n переводит строки интерфейса.
package i18n

import "sync"

// Language - язык интерфейса.
type Language string

const (
	RU Language = "ru"
	EN Language = "en"
)

var (
	mu      sync.RWMutex
	current = RU
)

var translations = map[Language]map[string]string{
	RU: {
		"app_name":    "Voskstream",
		"app_tooltip": "Voskstream - офлайн распознавание речи",

		"tray_idle":               "Остановлено",
		"tray_listening":          "Слушаю...",
		"tray_stopping":           "Останавливаю...",
		"tray_start":              "Начать",
		"tray_start_hint":         "Начать распознавание с микрофона",
		"tray_stop":               "Остановить",
		"tray_stop_hint":          "Остановить распознавание",
		"tray_notifications":      "Уведомления",
		"tray_notifications_hint": "Показывать распознанный текст",
		"tray_type":               "Печатать в активное окно",
		"tray_type_hint":          "Вводить фразы как с клавиатуры",
		"tray_hotkey":             "Горячая клавиша...",
		"tray_hotkey_hint":        "Сочетание для запуска и остановки",
		"tray_language":           "Язык интерфейса",
		"tray_quit":               "Выход",
		"tray_quit_hint":          "Закрыть приложение",

		"notify_text":  "Распознано",
		"notify_error": "Ошибка",
		"notify_ready": "Voskstream готов к работе",

		"dialog_download":       "Загрузка модели",
		"dialog_download_text":  "Скачивание %s...",
		"dialog_hotkey":         "Горячая клавиша",
		"dialog_hotkey_prompt":  "Сочетание (например ctrl+shift+space):",
		"error_start":           "Не удалось начать распознавание",
		"error_model_not_found": "Модель не найдена ни локально, ни в каталоге",
		"error_download":        "Не удалось скачать модель",
		"error_device":          "Ошибка микрофона",
		"error_hotkey_register": "Не удалось зарегистрировать горячую клавишу",
		"error_input":           "Ошибка ввода текста",
	},
	EN: {
		"app_name":    "Voskstream",
		"app_tooltip": "Voskstream - offline speech recognition",

		"tray_idle":               "Stopped",
		"tray_listening":          "Listening...",
		"tray_stopping":           "Stopping...",
		"tray_start":              "Start",
		"tray_start_hint":         "Start recognizing the microphone",
		"tray_stop":               "Stop",
		"tray_stop_hint":          "Stop recognition",
		"tray_notifications":      "Notifications",
		"tray_notifications_hint": "Show recognized text",
		"tray_type":               "Type into active window",
		"tray_type_hint":          "Enter phrases as keyboard input",
		"tray_hotkey":             "Hotkey...",
		"tray_hotkey_hint":        "Shortcut to start and stop",
		"tray_language":           "Interface language",
		"tray_quit":               "Quit",
		"tray_quit_hint":          "Close the application",

		"notify_text":  "Recognized",
		"notify_error": "Error",
		"notify_ready": "Voskstream is ready",

		"dialog_download":       "Model download",
		"dialog_download_text":  "Downloading %s...",
		"dialog_hotkey":         "Hotkey",
		"dialog_hotkey_prompt":  "Shortcut (e.g. ctrl+shift+space):",
		"error_start":           "Failed to start recognition",
		"error_model_not_found": "Model not found locally or in the catalog",
		"error_download":        "Failed to download the model",
		"error_device":          "Microphone error",
		"error_hotkey_register": "Failed to register the hotkey",
		"error_input":           "Failed to type text",
	},
}

// T возвращает перевод ключа на текущем языке или сам ключ.
func T(key string) string {
	mu.RLock()
	defer mu.RUnlock()

	if s, ok := translations[current][key]; ok {
		return s
	}
	return key
}

// SetLanguage устанавливает язык. Неизвестный язык заменяется русским.
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := translations[lang]; !ok {
		lang = RU
	}
	current = lang
}

// GetLanguage возвращает текущий язык.
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// AvailableLanguages возвращает поддерживаемые языки.
func AvailableLanguages() []Language {
	return []Language{RU, EN}
}

// LanguageName возвращает название языка для меню.
func LanguageName(lang Language) string {
	switch lang {
	case RU:
		return "Русский"
	case EN:
		return "English"
	default:
		return string(lang)
	}
}
