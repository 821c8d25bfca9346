// Package weibo publishes mirrored posts to the Weibo mobile API:
// credential handling, the two-step media upload, status posting, and
// caption synthesis from enriched tags.
package weibo

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"boorubot/internal/logging"
	"boorubot/internal/services"
)

const (
	defaultAPIBase    = "https://api.weibo.cn"
	defaultUploadBase = "https://unistore.weibo.cn"

	clientUserAgent = "okhttp/3.12.1"
	appPin          = "g4c8CKKdwh3LE1mRX7uxyx7AafXUkJsh"
	appFrom         = "2599295010"
	appC            = "weibofastios"
	appUA           = "Google_6.0_weibolite_4550"
	appI            = "1234567"
	appSource       = "902784192"
	paramWM         = "2468_1001"
	formWM          = "2468_90035"
	mediaBypass     = "unistore.image"

	uploadFailedCode = "3022401"
	uploadAttempts   = 3
	uploadDelay      = time.Second
)

// Credentials are the opaque session artifacts of a logged-in mobile
// client, obtained out of band and stored on disk.
type Credentials struct {
	AID  string `json:"aid"`
	GSID string `json:"gsid"`
	UID  string `json:"uid"`
}

// LoadCredentials reads a credentials file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "weibo", "load credentials", path, err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "weibo", "parse credentials", path, err)
	}
	if creds.AID == "" || creds.GSID == "" || creds.UID == "" {
		return nil, services.Wrap(services.ErrConfiguration, "weibo", "parse credentials",
			"aid, gsid, and uid are all required", nil)
	}
	return &creds, nil
}

// APIError is a structured error payload returned by the API.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("weibo api error %s: %s", e.Code, e.Message)
}

// Status is the relevant part of a successful status-post response.
type Status struct {
	IDStr       string `json:"idstr"`
	OriginalPic string `json:"original_pic"`
}

// Client talks to the status and media-upload endpoints using stored
// session credentials. Base URLs are overridable for tests.
type Client struct {
	httpClient *http.Client
	creds      *Credentials
	sig        string
	sessionID  string
	logger     *slog.Logger

	APIBaseURL    string
	UploadBaseURL string
}

// NewClient builds a posting client for the given credentials.
func NewClient(creds *Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		creds:         creds,
		sig:           calculateS(creds.UID),
		sessionID:     uuid.NewString(),
		logger:        logger.With(logging.String(logging.FieldComponent, "weibo")),
		APIBaseURL:    defaultAPIBase,
		UploadBaseURL: defaultUploadBase,
	}
}

// UID returns the account id of the configured credentials.
func (c *Client) UID() string {
	return c.creds.UID
}

// Share uploads a media file and posts a status referencing it. The
// upload is retried a few times on transient failures and the
// service's media-store error code before giving up.
func (c *Client) Share(ctx context.Context, content, mediaPath string) (*Status, error) {
	data, err := os.ReadFile(mediaPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "weibo", "read media", mediaPath, err)
	}
	var picID string
	for attempt := 1; ; attempt++ {
		picID, err = c.uploadMedia(ctx, filepath.Base(mediaPath), data)
		if err == nil {
			break
		}
		if attempt == uploadAttempts || !retryableUpload(err) {
			return nil, err
		}
		c.logger.Warn("media upload failed, retrying",
			logging.Int("attempt", attempt),
			logging.Error(err))
		select {
		case <-time.After(uploadDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.sendStatus(ctx, content, picID)
}

func retryableUpload(err error) bool {
	if services.IsTransient(err) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == uploadFailedCode
}

// uploadMedia runs the init and send steps of the media upload and
// returns the resulting pic id.
func (c *Client) uploadMedia(ctx context.Context, name string, data []byte) (string, error) {
	sum := md5.Sum(data)
	check := hex.EncodeToString(sum[:])
	props, err := json.Marshal(map[string]string{
		"raw_md5":    check,
		"createtype": "localfile",
		"ori":        "1",
		"print_mark": "0",
	})
	if err != nil {
		return "", fmt.Errorf("encode media props: %w", err)
	}

	params := c.commonParams()
	params.Set("length", strconv.Itoa(len(data)))
	params.Set("check", check)
	params.Set("name", name)
	params.Set("type", "pic")
	params.Set("mediaprops", string(props))

	var initRes struct {
		UploadURL string `json:"upload_url"`
		FileToken string `json:"fileToken"`
	}
	initURL := c.UploadBaseURL + "/2/statuses/upload_file?act=init&need_https=1&" + params.Encode()
	if err := c.do(ctx, http.MethodGet, initURL, nil, "", &initRes); err != nil {
		return "", err
	}
	if initRes.UploadURL == "" || initRes.FileToken == "" {
		return "", &APIError{Message: "upload init returned no file token"}
	}

	params = c.commonParams()
	params.Set("chunksize", strconv.Itoa(len(data)))
	params.Set("filetoken", initRes.FileToken)
	params.Set("i", appI)
	params.Set("urltag", "0")
	params.Set("chunkindex", "0")
	params.Set("sectioncheck", check)
	params.Set("startloc", "0")
	params.Set("chunkcount", "1")

	sep := "?"
	if strings.Contains(initRes.UploadURL, "?") {
		sep = "&"
	}
	var sendRes struct {
		PicID string `json:"pic_id"`
	}
	sendURL := initRes.UploadURL + sep + params.Encode()
	if err := c.do(ctx, http.MethodPost, sendURL, bytes.NewReader(data), "application/octet-stream", &sendRes); err != nil {
		return "", err
	}
	if sendRes.PicID == "" {
		return "", &APIError{Message: "upload send returned no pic id"}
	}
	return sendRes.PicID, nil
}

// sendStatus posts the status with the uploaded media attached.
func (c *Client) sendStatus(ctx context.Context, content, picID string) (*Status, error) {
	media, err := json.Marshal([]map[string]any{{
		"fid":        picID,
		"bypass":     mediaBypass,
		"type":       "pic",
		"picStatus":  0,
		"createtype": "localfile",
	}})
	if err != nil {
		return nil, fmt.Errorf("encode media reference: %w", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"s":       c.sig,
		"source":  appSource,
		"gsid":    c.creds.GSID,
		"wm":      formWM,
		"from":    appFrom,
		"content": content,
		"c":       appC,
		"lang":    "en_US",
		"ua":      appUA,
		"media":   string(media),
		"aid":     c.creds.AID,
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("encode form field %s: %w", key, err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("finish form: %w", err)
	}

	params := c.commonParams()
	params.Del("status")
	target := c.APIBaseURL + "/2/statuses/send?" + params.Encode()

	var status Status
	if err := c.do(ctx, http.MethodPost, target, &body, form.FormDataContentType(), &status); err != nil {
		return nil, err
	}
	if status.IDStr == "" || status.OriginalPic == "" {
		return nil, &APIError{Message: "status post returned no id"}
	}
	return &status, nil
}

func (c *Client) commonParams() url.Values {
	v := url.Values{}
	v.Set("c", appC)
	v.Set("from", appFrom)
	v.Set("aid", c.creds.AID)
	v.Set("gsid", c.creds.GSID)
	v.Set("uid", c.creds.UID)
	v.Set("ua", appUA)
	v.Set("lang", "en_US")
	v.Set("status", "wifi")
	v.Set("wm", paramWM)
	v.Set("source", appSource)
	v.Set("s", c.sig)
	return v
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return services.Wrap(services.ErrValidation, "weibo", "request", target, err)
	}
	req.Header.Set("User-Agent", clientUserAgent)
	req.Header.Set("X-Sessionid", c.sessionID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "weibo", "request", target, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "weibo", "read body", target, err)
	}
	if resp.StatusCode >= 500 {
		return services.Wrap(services.ErrTransient, "weibo", "request",
			fmt.Sprintf("%s returned %s", target, resp.Status), nil)
	}
	if resp.StatusCode >= 400 {
		return services.Wrap(services.ErrValidation, "weibo", "request",
			fmt.Sprintf("%s returned %s", target, resp.Status), nil)
	}

	if apiErr := decodeAPIError(payload); apiErr != nil {
		return apiErr
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return services.Wrap(services.ErrTransient, "weibo", "decode json", target, err)
	}
	return nil
}

// flexString absorbs fields the API serves as either number or string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func decodeAPIError(payload []byte) *APIError {
	var env struct {
		ErrorCode flexString `json:"error_code"`
		Error     string     `json:"error"`
		Errno     flexString `json:"errno"`
		Errmsg    string     `json:"errmsg"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil
	}
	if env.ErrorCode == "" && env.Errno == "" {
		return nil
	}
	code := string(env.ErrorCode)
	if code == "" {
		code = string(env.Errno)
	}
	message := env.Error
	if message == "" {
		message = env.Errmsg
	}
	return &APIError{Code: code, Message: message}
}

// calculateS derives the request signature the mobile client sends
// alongside its session id.
func calculateS(content string) string {
	key1 := sha512Hex(appPin + content + appFrom)
	key2 := sha512Hex(appFrom)
	out := make([]byte, 0, 8)
	j := 0
	for i := 0; i < 8; i++ {
		j += signatureDigit(key2[j])
		out = append(out, key1[j])
	}
	return string(out)
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

func signatureDigit(b byte) int {
	if b-'0' <= 9 {
		return int(b - '0')
	}
	if b-'A' > 5 {
		return int(b - 'a' + 10)
	}
	return int(b - 'A' + 10)
}
