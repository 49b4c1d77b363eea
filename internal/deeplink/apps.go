package deeplink

// ClientApp — идентификатор целевого VPN-клиента.
type ClientApp string

const (
	// AppHapp — основной рекомендуемый клиент.
	AppHapp ClientApp = "happ"
	// AppV2Ray — семейство v2rayNG / v2rayN как запасной вариант.
	AppV2Ray ClientApp = "v2ray"
)

// App описывает целевой клиент: его custom-схему и поддержку
// зашифрованных ссылок.
type App struct {
	ID             ClientApp
	Name           string
	Scheme         string
	SupportsCrypto bool
}

var apps = map[ClientApp]App{
	AppHapp:  {ID: AppHapp, Name: "Happ", Scheme: "happ", SupportsCrypto: true},
	AppV2Ray: {ID: AppV2Ray, Name: "v2rayNG", Scheme: "v2rayng", SupportsCrypto: false},
}

// LookupApp возвращает описание клиента по идентификатору.
func LookupApp(id ClientApp) (App, bool) {
	app, ok := apps[id]
	return app, ok
}
