package utils

import (
	"net"
	"net/http"
	"syscall"
	"time"
)

type HTTPClientConfig struct {
	Timeout        time.Duration // response header bound; body stalls are handled by the engine
	KATimeout      time.Duration
	UserAgent      string
	Headers        map[string]string
	HighThreadMode bool // advanced socket options for high concurrency
}

type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 90 * time.Second
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		IdleConnTimeout:       cfg.KATimeout,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		DisableCompression:    true, // raw bytes, so offsets match the file on disk
		MaxConnsPerHost:       0,
	}
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if cfg.HighThreadMode {
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				setSocketOptions(fd)
			})
		}
	}
	transport.DialContext = dialer.DialContext
	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
		},
		config: cfg,
	}
}

func (c *HTTPClient) Timeout() time.Duration {
	return c.config.Timeout
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	return c.client.Do(req)
}
