package virustotal

import (
	"context"
	"crypto"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/interfaces"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/utils/logging"
	"github.com/secmon-lab/malinsight/pkg/utils/safe"
)

// DefaultBaseURL is the VirusTotal v3 API root
const DefaultBaseURL = "https://www.virustotal.com/api/v3"

// maxErrorBody bounds how much of an error response is kept in error values
const maxErrorBody = 512

// maxReportBody bounds a file report response
const maxReportBody = 8 << 20

// Client implements interfaces.ReputationService against the VirusTotal API
type Client struct {
	baseURL    string
	httpClient *http.Client
	hash       crypto.Hash
}

var _ interfaces.ReputationService = &Client{}

type Option func(*Client)

// WithBaseURL overrides the API root, e.g. to go through a proxy
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for lookups
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHashFunc sets the digest used by Hash
func WithHashFunc(h crypto.Hash) Option {
	return func(c *Client) {
		c.hash = h
	}
}

// New creates a VirusTotal client
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		hash:       crypto.SHA256,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Lookup fetches the file report for identifier with exactly one GET
// request. No retries are made and nothing is cached.
func (c *Client) Lookup(ctx context.Context, identifier, apiKey string) (json.RawMessage, error) {
	identifier = strings.TrimSpace(identifier)
	if apiKey == "" {
		return nil, goerr.Wrap(model.ErrMissingCredential, "VirusTotal API key is required")
	}
	if identifier == "" {
		return nil, goerr.Wrap(model.ErrMissingIdentifier, "file hash is required")
	}

	endpoint := c.baseURL + "/files/" + url.PathEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create VirusTotal request", goerr.V(model.IdentifierKey, identifier))
	}
	req.Header.Set("x-apikey", apiKey)
	req.Header.Set("Accept", "application/json")

	logging.From(ctx).Debug("looking up sample", "identifier", identifier, "endpoint", c.baseURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(model.ErrUpstream, "failed to reach VirusTotal",
			goerr.V(model.IdentifierKey, identifier),
			goerr.V("cause", err.Error()),
		)
	}
	defer safe.Close(ctx, resp.Body)

	body, err := safe.ReadLimited(resp.Body, maxReportBody)
	if err != nil {
		return nil, goerr.Wrap(model.ErrUpstream, "failed to read VirusTotal response",
			goerr.V(model.IdentifierKey, identifier),
			goerr.V(model.StatusKey, resp.StatusCode),
			goerr.V("cause", err.Error()),
		)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, goerr.Wrap(model.ErrNotFound, "file hash "+identifier+" is not known to VirusTotal; upload the sample there first",
			goerr.V(model.IdentifierKey, identifier),
			goerr.V(model.StatusKey, resp.StatusCode),
		)

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg := resp.Status
		var apiErr apiErrorBody
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Code + ": " + apiErr.Error.Message
		}
		return nil, goerr.Wrap(model.ErrUpstream, "VirusTotal API error: "+msg,
			goerr.V(model.IdentifierKey, identifier),
			goerr.V(model.StatusKey, resp.StatusCode),
			goerr.V(model.MessageKey, truncateBody(body)),
		)
	}

	if !json.Valid(body) {
		return nil, goerr.Wrap(model.ErrUpstream, "VirusTotal returned a non-JSON body",
			goerr.V(model.IdentifierKey, identifier),
			goerr.V(model.ResponseKey, truncateBody(body)),
		)
	}

	return json.RawMessage(body), nil
}

func truncateBody(body []byte) string {
	return model.Truncate(string(body), maxErrorBody)
}
