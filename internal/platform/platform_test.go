package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	const (
		uaWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
		uaMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
		uaIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"
		uaAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8)"
	)

	tests := []struct {
		name string
		hint string
		ua   string
		want OS
	}{
		{"explicit ios", "ios", uaAndroid, IOS},
		{"macos maps to ios", "macos", uaWindows, IOS},
		{"explicit android", "android", uaIPhone, Android},
		{"tdesktop on windows", "tdesktop", uaWindows, Windows},
		{"tdesktop on mac", "tdesktop", uaMac, IOS},
		{"tdesktop without ua defaults to windows", "tdesktop", "", Windows},
		{"weba on iphone", "weba", uaIPhone, IOS},
		{"webk on windows", "webk", uaWindows, Windows},
		{"weba without ua defaults to android", "weba", "", Android},
		{"no hint, iphone ua", "", uaIPhone, IOS},
		{"no hint, windows ua", "", uaWindows, Windows},
		{"no hint, android ua", "", uaAndroid, Android},
		{"nothing matches defaults to android", "", "", Android},
		{"unknown hint falls back to ua", "unigram", uaWindows, Windows},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.hint, tt.ua))
		})
	}
}

func TestDetect_Deterministic(t *testing.T) {
	first := Detect("tdesktop", "Mozilla/5.0 (Windows NT 10.0)")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Detect("tdesktop", "Mozilla/5.0 (Windows NT 10.0)"))
	}
}
