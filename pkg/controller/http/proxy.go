package http

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/utils/errutil"
)

const proxyPrefix = "/vt-api"

// newVirusTotalProxy forwards /vt-api/<path> to <target>/<path> so browser
// code can reach VirusTotal without CORS support from it.
func newVirusTotalProxy(target string) (http.Handler, error) {
	targetURL, err := url.Parse(target)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid proxy target URL", goerr.V("target", target))
	}
	if targetURL.Scheme == "" || targetURL.Host == "" {
		return nil, goerr.New("proxy target must be an absolute URL", goerr.V("target", target))
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			path := strings.TrimPrefix(pr.In.URL.Path, proxyPrefix)
			if path == "" {
				path = "/"
			}
			pr.Out.URL.Path = path
			pr.Out.URL.RawPath = ""
			pr.SetURL(targetURL)
			pr.Out.Header.Del("Cookie")
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			errutil.HandleHTTP(r.Context(), w,
				goerr.Wrap(model.ErrUpstream, "VirusTotal proxy request failed",
					goerr.V(model.MessageKey, err.Error())),
				http.StatusBadGateway)
		},
	}, nil
}
