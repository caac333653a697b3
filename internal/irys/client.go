package irys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"pet-arena/internal/config"
	"pet-arena/internal/constants"
	"pet-arena/internal/domain"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

var ErrInsufficientFunds = errors.New("irys: not enough funds to upload")

// Funder moves native tokens to the bundler's deposit address.
type Funder interface {
	Transfer(ctx context.Context, to string, amount *big.Int) (txHash string, err error)
}

type Client struct {
	nodeURL    string
	token      string
	gatewayURL string
	signer     Signer
	address    string
	funder     Funder
	client     *fasthttp.Client
}

// FundResult describes a confirmed deposit registration.
type FundResult struct {
	TxID     string
	Quantity *big.Int
	Token    string
}

func NewClient(cfg *config.Config, signer *EthereumSigner, funder Funder) *Client {
	return &Client{
		nodeURL:    cfg.IrysNodeURL,
		token:      cfg.IrysToken,
		gatewayURL: cfg.IrysGatewayURL,
		signer:     signer,
		address:    signer.Address().Hex(),
		funder:     funder,
		client: &fasthttp.Client{
			MaxConnsPerHost:     50,
			ReadTimeout:         60 * time.Second,
			WriteTimeout:        60 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *Client) Token() string { return c.token }

func (c *Client) GatewayURL(id string) string {
	return c.gatewayURL + "/" + id
}

// MutableURL resolves to the latest version of the stream rooted at rootID.
func (c *Client) MutableURL(rootID string) string {
	return c.gatewayURL + "/mutable/" + rootID
}

func (c *Client) Upload(ctx context.Context, data []byte, tags []domain.Tag) (*domain.Receipt, error) {
	return c.UploadReader(ctx, bytes.NewReader(data), tags)
}

func (c *Client) UploadFile(ctx context.Context, path string, tags []domain.Tag) (*domain.Receipt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	return c.UploadReader(ctx, f, tags)
}

// UploadReader hashes r once to sign the data item, rewinds it, and streams
// header plus payload to the node.
func (c *Client) UploadReader(ctx context.Context, r io.ReadSeeker, tags []domain.Tag) (*domain.Receipt, error) {
	size, digest, err := digestReader(r)
	if err != nil {
		return nil, err
	}
	anchor, err := newAnchor()
	if err != nil {
		return nil, fmt.Errorf("failed to create anchor: %w", err)
	}
	hdr, err := buildHeader(c.signer, tags, anchor, size, digest)
	if err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/tx/%s", c.nodeURL, c.token))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/octet-stream")
	req.SetBodyStream(io.MultiReader(bytes.NewReader(hdr.bytes), r), len(hdr.bytes)+int(size))

	if err := c.do(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("failed to post data item: %w", err)
	}

	switch resp.StatusCode() {
	case fasthttp.StatusOK, fasthttp.StatusCreated, fasthttp.StatusAccepted:
	case fasthttp.StatusPaymentRequired:
		return nil, ErrInsufficientFunds
	default:
		return nil, fmt.Errorf("irys upload error: %d %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}

	receipt := &domain.Receipt{ID: hdr.id, Size: size}
	var body struct {
		ID        string `json:"id"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		if body.ID != "" {
			receipt.ID = body.ID
		}
		receipt.Timestamp = body.Timestamp
	}
	return receipt, nil
}

func (c *Client) Fetch(ctx context.Context, id string) ([]byte, error) {
	return c.get(ctx, c.GatewayURL(id))
}

func (c *Client) FetchMutable(ctx context.Context, rootID string) ([]byte, error) {
	return c.get(ctx, c.MutableURL(rootID))
}

// Price is the atomic cost of uploading n bytes.
func (c *Client) Price(ctx context.Context, n int64) (*big.Int, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/price/%s/%d", c.nodeURL, c.token, n))
	if err != nil {
		return nil, err
	}
	return parseAtomic(strings.Trim(strings.TrimSpace(string(body)), `"`))
}

func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/account/balance/%s?address=%s", c.nodeURL, c.token, c.address))
	if err != nil {
		return nil, err
	}
	var out struct {
		Balance json.Number `json:"balance"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode balance: %w", err)
	}
	return parseAtomic(out.Balance.String())
}

// Fund deposits amount (atomic units) with the node: transfer on chain, then
// register the transaction so the node credits the account.
func (c *Client) Fund(ctx context.Context, amount *big.Int) (*FundResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("fund amount must be positive")
	}
	if c.funder == nil {
		return nil, fmt.Errorf("funding is not configured")
	}

	body, err := c.get(ctx, c.nodeURL+"/info")
	if err != nil {
		return nil, fmt.Errorf("failed to read node info: %w", err)
	}
	var info struct {
		Addresses map[string]string `json:"addresses"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode node info: %w", err)
	}
	to := info.Addresses[c.token]
	if to == "" {
		return nil, fmt.Errorf("node does not accept %s", c.token)
	}

	txHash, err := c.funder.Transfer(ctx, to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to send funding transfer: %w", err)
	}

	payload, _ := json.Marshal(map[string]string{"tx_id": txHash})
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/account/balance/%s", c.nodeURL, c.token))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	if err := c.do(ctx, req, resp); err != nil {
		return nil, fmt.Errorf("failed to register funding tx %s: %w", txHash, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("irys fund error: %d %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
	}

	return &FundResult{TxID: txHash, Quantity: new(big.Int).Set(amount), Token: c.token}, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	if deadline, ok := ctx.Deadline(); ok {
		req.SetTimeout(time.Until(deadline))
	}
	if err := c.client.DoRedirects(req, resp, constants.MaxRedirects); err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("irys error: %d", resp.StatusCode())
	}
	return append([]byte(nil), resp.Body()...), nil
}

func (c *Client) do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if deadline, ok := ctx.Deadline(); ok {
		return c.client.DoDeadline(req, resp, deadline)
	}
	return c.client.Do(req, resp)
}

func parseAtomic(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid atomic amount %q", s)
	}
	return n, nil
}
