package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const defaultS3RequestTimeout = 30 * time.Second

// S3Config points the store at an S3-compatible bucket. When AccessKey or
// SecretKey is empty, requests go out unsigned (for anonymous dev endpoints).
type S3Config struct {
	Endpoint       string
	Bucket         string
	Prefix         string
	Region         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	RequestTimeout time.Duration
}

// S3Store persists blobs in an S3-compatible bucket using sigv4 requests.
// Renames are server-side copies followed by a delete.
type S3Store struct {
	cfg        S3Config
	endpoint   *url.URL
	httpClient *http.Client
}

// NewS3Store validates the configuration and builds the client.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if bucket == "" || endpoint == "" {
		return nil, fmt.Errorf("s3 bucket and endpoint are required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultS3RequestTimeout
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	if strings.Contains(endpoint, "://") {
		if parsed, err := url.Parse(endpoint); err == nil {
			endpoint = parsed.Host
		}
	}
	base := &url.URL{Scheme: scheme, Host: endpoint}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid s3 endpoint")
	}
	cfg.Bucket = bucket
	return &S3Store{
		cfg:        cfg,
		endpoint:   base,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

func (s *S3Store) applyPrefix(key string) string {
	trimmed := strings.TrimLeft(CleanKey(key), "/")
	prefix := strings.Trim(strings.TrimSpace(s.cfg.Prefix), "/")
	if prefix == "" {
		return trimmed
	}
	return prefix + "/" + trimmed
}

func (s *S3Store) objectURL(finalKey string) *url.URL {
	path := "/" + strings.TrimLeft(s.cfg.Bucket, "/")
	if trimmedKey := strings.TrimLeft(finalKey, "/"); trimmedKey != "" {
		path += "/" + trimmedKey
	}
	u := *s.endpoint
	u.Path = path
	return &u
}

// Save uploads the content in one signed PUT.
func (s *S3Store) Save(key, contentType string, content io.Reader) error {
	body, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("read blob content: %w", err)
	}
	finalKey := s.applyPrefix(key)
	request, err := http.NewRequest(http.MethodPut, s.objectURL(finalKey).String(), strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	s.signRequest(request, hashSHA256Hex(body))
	response, err := s.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("upload object %s: %w", finalKey, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("upload object %s: unexpected status %d", finalKey, response.StatusCode)
	}
	return nil
}

// Rename copies server-side and deletes the source.
func (s *S3Store) Rename(oldKey, newKey string) error {
	source := s.applyPrefix(oldKey)
	target := s.applyPrefix(newKey)
	request, err := http.NewRequest(http.MethodPut, s.objectURL(target).String(), nil)
	if err != nil {
		return fmt.Errorf("create copy request: %w", err)
	}
	request.Header.Set("x-amz-copy-source", "/"+strings.TrimLeft(s.cfg.Bucket, "/")+"/"+source)
	s.signRequest(request, emptyPayloadHash)
	response, err := s.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("copy object %s: %w", source, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("copy object %s: unexpected status %d", source, response.StatusCode)
	}
	return s.Delete(oldKey)
}

// Delete removes the object; a 404 reports ErrNotFound.
func (s *S3Store) Delete(key string) error {
	finalKey := s.applyPrefix(key)
	request, err := http.NewRequest(http.MethodDelete, s.objectURL(finalKey).String(), nil)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	s.signRequest(request, emptyPayloadHash)
	response, err := s.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("delete object %s: %w", finalKey, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("delete object %s: unexpected status %d", finalKey, response.StatusCode)
	}
	return nil
}

// Open streams the object body.
func (s *S3Store) Open(key string) (io.ReadCloser, time.Time, error) {
	finalKey := s.applyPrefix(key)
	request, err := http.NewRequest(http.MethodGet, s.objectURL(finalKey).String(), nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("create get request: %w", err)
	}
	s.signRequest(request, emptyPayloadHash)
	response, err := s.httpClient.Do(request)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("get object %s: %w", finalKey, err)
	}
	if response.StatusCode == http.StatusNotFound {
		_ = response.Body.Close()
		return nil, time.Time{}, ErrNotFound
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		_ = response.Body.Close()
		return nil, time.Time{}, fmt.Errorf("get object %s: unexpected status %d", finalKey, response.StatusCode)
	}
	modified := time.Now().UTC()
	if parsed, err := http.ParseTime(response.Header.Get("Last-Modified")); err == nil {
		modified = parsed
	}
	return response.Body, modified, nil
}

func (s *S3Store) signRequest(req *http.Request, payloadHash string) {
	req.Host = req.URL.Host
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("x-amz-content-sha256", payloadHash)
	accessKey := strings.TrimSpace(s.cfg.AccessKey)
	secretKey := strings.TrimSpace(s.cfg.SecretKey)
	if accessKey == "" || secretKey == "" {
		return
	}
	region := strings.TrimSpace(s.cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	now := time.Now().UTC()
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")
	req.Header.Set("x-amz-date", amzDate)
	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")
	hash := sha256.Sum256([]byte(canonicalRequest))
	scope := strings.Join([]string{dateStamp, region, "s3", "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hex.EncodeToString(hash[:]),
	}, "\n")
	signingKey := deriveSigningKey(secretKey, dateStamp, region)
	signature := hmacSHA256Hex(signingKey, stringToSign)
	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		accessKey, scope, signedHeaders, signature,
	))
}

func canonicalizeHeaders(req *http.Request) (string, string) {
	headerMap := make(map[string][]string)
	for key, values := range req.Header {
		lower := strings.ToLower(key)
		if lower == "authorization" {
			continue
		}
		cleaned := make([]string, 0, len(values))
		for _, v := range values {
			cleaned = append(cleaned, strings.TrimSpace(v))
		}
		headerMap[lower] = cleaned
	}
	if _, ok := headerMap["host"]; !ok && req.Host != "" {
		headerMap["host"] = []string{req.Host}
	}
	keys := make([]string, 0, len(headerMap))
	for key := range headerMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var builder strings.Builder
	var signed []string
	for _, key := range keys {
		builder.WriteString(key)
		builder.WriteByte(':')
		builder.WriteString(strings.Join(headerMap[key], ","))
		builder.WriteByte('\n')
		signed = append(signed, key)
	}
	return builder.String(), strings.Join(signed, ";")
}

func canonicalURI(u *url.URL) string {
	if u == nil {
		return "/"
	}
	path := u.EscapedPath()
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}

func canonicalQuery(u *url.URL) string {
	if u == nil {
		return ""
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil || len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var builder strings.Builder
	for idx, key := range keys {
		if idx > 0 {
			builder.WriteByte('&')
		}
		sort.Strings(values[key])
		for vIdx, value := range values[key] {
			if vIdx > 0 {
				builder.WriteByte('&')
			}
			builder.WriteString(url.QueryEscape(key))
			builder.WriteByte('=')
			builder.WriteString(url.QueryEscape(value))
		}
	}
	return builder.String()
}

func deriveSigningKey(secret, dateStamp, region string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte("s3"))
	return hmacSHA256(kService, []byte("aws4_request"))
}

func hmacSHA256(key []byte, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func hmacSHA256Hex(key []byte, data string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

var emptyPayloadHash = hashSHA256Hex(nil)

func hashSHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

var _ Store = (*S3Store)(nil)
