// Package host описывает возможности, которые мини-аппу предоставляет
// хост-контейнер (Telegram WebApp). Мост передаётся зависимостью, а не
// берётся из глобального объекта — в тестах подставляется заглушка.
package host

// Bridge — инжектируемая способность хоста.
//
// InitData возвращает непрозрачный токен идентичности; пустая строка
// означает, что хост не может подтвердить пользователя (демо-режим).
// OnResume регистрирует обработчик события возврата в приложение и
// возвращает функцию отписки.
type Bridge interface {
	Platform() string
	UserAgent() string
	InitData() string
	OpenLink(url string) error
	WriteClipboard(text string) error
	OnResume(fn func()) (unsubscribe func())
}

// Noop — мост-заглушка: идентичности нет, переходы и буфер обмена
// игнорируются. Используется в тестах и в демонстрационном режиме.
type Noop struct{}

func (Noop) Platform() string                     { return "" }
func (Noop) UserAgent() string                    { return "" }
func (Noop) InitData() string                     { return "" }
func (Noop) OpenLink(string) error                { return nil }
func (Noop) WriteClipboard(string) error          { return nil }
func (Noop) OnResume(func()) (unsubscribe func()) { return func() {} }

// Static — мост с заранее заданными значениями. Применяется консольными
// инструментами, где возможности хоста ограничены выводом в терминал.
type Static struct {
	PlatformName  string
	UA            string
	InitDataValue string
	OpenFunc      func(url string) error
	ClipboardFunc func(text string) error
}

func (s *Static) Platform() string  { return s.PlatformName }
func (s *Static) UserAgent() string { return s.UA }
func (s *Static) InitData() string  { return s.InitDataValue }

func (s *Static) OpenLink(url string) error {
	if s.OpenFunc == nil {
		return nil
	}
	return s.OpenFunc(url)
}

func (s *Static) WriteClipboard(text string) error {
	if s.ClipboardFunc == nil {
		return nil
	}
	return s.ClipboardFunc(text)
}

func (s *Static) OnResume(func()) (unsubscribe func()) { return func() {} }
