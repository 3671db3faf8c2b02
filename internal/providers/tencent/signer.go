package tencent

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultHost            = "asr.cloud.tencent.com"
	DefaultEngineModelType = "16k_zh"
	DefaultURLTTL          = 24 * time.Hour

	// voiceFormatPCM selects raw 16-bit PCM input.
	voiceFormatPCM = 1
)

// ErrNotConfigured is returned when cloud credentials are missing.
var ErrNotConfigured = errors.New("tencent cloud credentials are not configured")

// SignerConfig holds the credentials used to sign recognition URLs.
type SignerConfig struct {
	AppID           string
	SecretID        string
	SecretKey       string
	Host            string
	EngineModelType string
	TTL             time.Duration
}

// LocalSigner produces signed recognition URLs from credentials held in
// process. It is used by the backend server, and by the desktop app when no
// backend is configured.
type LocalSigner struct {
	cfg     SignerConfig
	now     func() time.Time
	nonce   func() int
	voiceID func() string
}

func NewLocalSigner(cfg SignerConfig) *LocalSigner {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.EngineModelType == "" {
		cfg.EngineModelType = DefaultEngineModelType
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultURLTTL
	}
	return &LocalSigner{
		cfg:     cfg,
		now:     time.Now,
		nonce:   func() int { return rand.IntN(100000) },
		voiceID: func() string { return "vocal-write-" + uuid.NewString() },
	}
}

func (s *LocalSigner) SignedURL(_ context.Context) (string, error) {
	if s.cfg.AppID == "" || s.cfg.SecretID == "" || s.cfg.SecretKey == "" {
		return "", ErrNotConfigured
	}

	timestamp := s.now().Unix()
	params := map[string]string{
		"SecretId":          s.cfg.SecretID,
		"timestamp":         strconv.FormatInt(timestamp, 10),
		"nonce":             strconv.Itoa(s.nonce()),
		"expired":           strconv.FormatInt(timestamp+int64(s.cfg.TTL/time.Second), 10),
		"engine_model_type": s.cfg.EngineModelType,
		"voice_id":          s.voiceID(),
		"voice_format":      strconv.Itoa(voiceFormatPCM),
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	path := "/asr/v2/" + s.cfg.AppID
	plain := make([]string, len(keys))
	escaped := make([]string, len(keys))
	for i, key := range keys {
		plain[i] = key + "=" + params[key]
		escaped[i] = escapeComponent(key) + "=" + escapeComponent(params[key])
	}

	signature := sign(s.cfg.SecretKey, s.cfg.Host+path+"?"+strings.Join(plain, "&"))
	return "wss://" + s.cfg.Host + path + "?" + strings.Join(escaped, "&") + "&signature=" + escapeComponent(signature), nil
}

func sign(secretKey string, payload string) string {
	mac := hmac.New(sha1.New, []byte(secretKey))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// escapeComponent matches the encoding browsers apply to URI components,
// which is what the server reproduces when it verifies the signature.
func escapeComponent(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// RemoteSigner fetches signed URLs from the vocalwrite backend.
type RemoteSigner struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewRemoteSigner(baseURL string, apiKey string, client *http.Client) *RemoteSigner {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteSigner{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/generate-signature",
		apiKey:   apiKey,
		client:   client,
	}
}

func (s *RemoteSigner) SignedURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build signature request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request signed url: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read signature response: %w", err)
	}

	var payload struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	decodeErr := json.Unmarshal(body, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && payload.Error != "" {
			return "", fmt.Errorf("signature request failed (%d): %s", resp.StatusCode, payload.Error)
		}
		return "", fmt.Errorf("signature request failed with status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode signature response: %w", decodeErr)
	}
	if payload.URL == "" {
		return "", errors.New("signature response did not contain a url")
	}
	return payload.URL, nil
}
