package discovery

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ShortsProbe detects shorts by requesting /shorts/<id>. Regular videos
// redirect to /watch, shorts stay on /shorts/.
type ShortsProbe struct {
	baseURL    string
	httpClient *http.Client
}

func NewShortsProbe(baseURL string, timeout time.Duration) *ShortsProbe {
	return &ShortsProbe{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *ShortsProbe) IsShort(ctx context.Context, id string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.baseURL+"/shorts/"+url.PathEscape(id), nil)
	if err != nil {
		return false, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return strings.Contains(resp.Request.URL.Path, "/shorts/"), nil
}
