// Package platform определяет семейство ОС пользователя по подсказке
// хост-платформы (Telegram WebApp) и user-agent. Функции чистые, без I/O,
// детерминированы для одинаковых входов.
package platform

import "strings"

// OS — семейство операционной системы клиента. macOS сводится к ios:
// для него действует та же ветка установки VPN-клиента.
type OS string

const (
	IOS     OS = "ios"
	Android OS = "android"
	Windows OS = "windows"
)

// Valid сообщает, входит ли значение в поддерживаемый набор.
func (o OS) Valid() bool {
	switch o {
	case IOS, Android, Windows:
		return true
	}
	return false
}

// Detect возвращает ОС пользователя. Порядок разрешения:
//  1. явный токен платформы от хоста (ios, macos, android, tdesktop, weba, webk),
//     неоднозначные токены уточняются по user-agent;
//  2. подстроки user-agent;
//  3. по умолчанию android.
func Detect(hint, userAgent string) OS {
	ua := strings.ToLower(userAgent)

	switch strings.ToLower(hint) {
	case "ios", "macos":
		return IOS
	case "android", "android_x":
		return Android
	case "tdesktop":
		// tdesktop бывает на Windows, macOS и Linux
		if strings.Contains(ua, "mac") {
			return IOS
		}
		return Windows
	case "weba", "webk", "web":
		if isApple(ua) {
			return IOS
		}
		if strings.Contains(ua, "win") {
			return Windows
		}
		return Android
	}

	if isApple(ua) {
		return IOS
	}
	if strings.Contains(ua, "win") {
		return Windows
	}
	return Android
}

func isApple(ua string) bool {
	return strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "ipad") ||
		strings.Contains(ua, "mac")
}
