package deeplink

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CryptoClient — HTTP-клиент внешнего эндпоинта шифрования ссылок.
// Эндпоинт принимает сырую строку подписки и возвращает непрозрачный токен.
type CryptoClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewCryptoClient создаёт клиент эндпоинта шифрования.
func NewCryptoClient(endpoint string, timeout time.Duration) *CryptoClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CryptoClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type encryptRequest struct {
	URL string `json:"url"`
}

type encryptResponse struct {
	Encrypted string `json:"encrypted"`
}

// Encrypt отправляет строку подписки на шифрование и возвращает токен.
func (c *CryptoClient) Encrypt(ctx context.Context, credential string) (string, error) {
	const op = "deeplink.CryptoClient.Encrypt"

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(encryptRequest{URL: credential}); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}

	var encResp encryptResponse
	if err := json.NewDecoder(resp.Body).Decode(&encResp); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return encResp.Encrypted, nil
}

// Cache описывает методы кеша, которые нужны CachedEncrypter.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
}

// CachedEncrypter оборачивает Encrypter кешем: токены шифрования
// детерминированы для одной строки подписки, дергать внешний эндпоинт
// на каждый показ страницы не нужно. Ошибки кеша не фатальны.
type CachedEncrypter struct {
	next  Encrypter
	cache Cache
	ttl   time.Duration
}

// NewCachedEncrypter создаёт кеширующую обёртку.
func NewCachedEncrypter(next Encrypter, cache Cache, ttl time.Duration) *CachedEncrypter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedEncrypter{next: next, cache: cache, ttl: ttl}
}

// Encrypt возвращает токен из кеша или запрашивает его у эндпоинта.
func (e *CachedEncrypter) Encrypt(ctx context.Context, credential string) (string, error) {
	key := cryptoCacheKey(credential)

	var cached string
	if found, err := e.cache.Get(key, &cached); err == nil && found && cached != "" {
		return cached, nil
	}

	token, err := e.next.Encrypt(ctx, credential)
	if err != nil {
		return "", err
	}
	_ = e.cache.Set(key, token, e.ttl)
	return token, nil
}

func cryptoCacheKey(credential string) string {
	// в ключ кладём хеш, а не саму строку подписки
	sum := sha256.Sum256([]byte(credential))
	return "cryptolink:" + hex.EncodeToString(sum[:])
}
