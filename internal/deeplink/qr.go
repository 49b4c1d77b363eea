package deeplink

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultQRSize — размер стороны QR-картинки в пикселях.
const DefaultQRSize = 256

// QRPNG рендерит строку подписки в PNG с QR-кодом. Это неходовой кандидат:
// картинка показывается пользователю, переход по ней не выполняется.
func QRPNG(credential string, size int) ([]byte, error) {
	const op = "deeplink.QRPNG"

	if credential == "" {
		return nil, fmt.Errorf("%s: empty credential", op)
	}
	if size <= 0 {
		size = DefaultQRSize
	}

	png, err := qrcode.Encode(credential, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return png, nil
}
