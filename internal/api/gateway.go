package api

import (
	"context"
	"encoding/json"
	"fmt"
	"pet-arena/internal/config"
	"pet-arena/internal/constants"
	"pet-arena/internal/domain"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const ipfsScheme = "ipfs://"

// GatewayClient dereferences token URIs and fetches pet metadata documents.
type GatewayClient struct {
	ipfsGateway string
	client      *fasthttp.Client
}

func NewGatewayClient(cfg *config.Config) *GatewayClient {
	return &GatewayClient{
		ipfsGateway: cfg.IPFSGatewayURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

// ResolveURI rewrites content-addressed ipfs:// URIs to the HTTP gateway.
func (c *GatewayClient) ResolveURI(uri string) string {
	if strings.HasPrefix(uri, ipfsScheme) {
		gateway := c.ipfsGateway
		if !strings.HasSuffix(gateway, "/") {
			gateway += "/"
		}
		return gateway + strings.TrimPrefix(uri, ipfsScheme)
	}
	return uri
}

func (c *GatewayClient) FetchMetadata(ctx context.Context, uri string) (*domain.Metadata, error) {
	meta, err := doRequest[domain.Metadata](ctx, c.client, c.ResolveURI(uri))
	if err != nil {
		return nil, err
	}
	meta.Image = c.ResolveURI(meta.Image)
	return meta, nil
}

func doRequest[T any](ctx context.Context, client *fasthttp.Client, url string) (*T, error) {
	body, err := doGet(ctx, client, url)
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return &result, nil
}

// doGet returns a copy of the body; fasthttp reuses the response buffer on release.
func doGet(ctx context.Context, client *fasthttp.Client, url string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if deadline, ok := ctx.Deadline(); ok {
		req.SetTimeout(time.Until(deadline))
	}
	// gateways commonly answer content paths with a redirect to a subdomain
	if err := client.DoRedirects(req, resp, constants.MaxRedirects); err != nil {
		return nil, err
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("gateway error: %d", resp.StatusCode())
	}

	return append([]byte(nil), resp.Body()...), nil
}
