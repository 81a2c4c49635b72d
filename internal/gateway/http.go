package gateway

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net"
    "net/http"
    "net/url"
    "time"
)

// HTTPGateway talks JSON over HTTP to the payment provider.  Every
// call carries a bounded timeout; an elapsed deadline maps to
// ErrTimeout so callers can distinguish ambiguity from a definitive
// decline.
type HTTPGateway struct {
    baseURL string
    apiKey  string
    client  *http.Client
}

// NewHTTPGateway returns a gateway client for the given base URL.
// The timeout bounds each individual call.
func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration) *HTTPGateway {
    if timeout <= 0 {
        timeout = 10 * time.Second
    }
    return &HTTPGateway{
        baseURL: baseURL,
        apiKey:  apiKey,
        client:  &http.Client{Timeout: timeout},
    }
}

// Authorize submits the charge.  The idempotency key is forwarded in
// both the body and the Idempotency-Key header so a provider-side
// retry cannot double-charge.
func (g *HTTPGateway) Authorize(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
    body, err := json.Marshal(req)
    if err != nil {
        return ChargeResult{}, err
    }
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/charges", bytes.NewReader(body))
    if err != nil {
        return ChargeResult{}, err
    }
    httpReq.Header.Set("Content-Type", "application/json")
    httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
    httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

    resp, err := g.client.Do(httpReq)
    if err != nil {
        if isTimeout(err) {
            return ChargeResult{}, ErrTimeout
        }
        return ChargeResult{}, err
    }
    defer resp.Body.Close()

    switch resp.StatusCode {
    case http.StatusOK, http.StatusCreated:
        var result ChargeResult
        if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
            return ChargeResult{}, err
        }
        if !result.Approved {
            return result, ErrDeclined
        }
        return result, nil
    case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
        var result ChargeResult
        _ = json.NewDecoder(resp.Body).Decode(&result)
        return result, ErrDeclined
    case http.StatusGatewayTimeout, http.StatusRequestTimeout:
        return ChargeResult{}, ErrTimeout
    default:
        return ChargeResult{}, fmt.Errorf("gateway returned status %d", resp.StatusCode)
    }
}

// Lookup queries the gateway's record of a charge by idempotency
// key.  Used by the reconciliation job to resolve ambiguous
// timeouts.
func (g *HTTPGateway) Lookup(ctx context.Context, idempotencyKey string) (ChargeResult, error) {
    u := g.baseURL + "/v1/charges?idempotency_key=" + url.QueryEscape(idempotencyKey)
    httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
    if err != nil {
        return ChargeResult{}, err
    }
    httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

    resp, err := g.client.Do(httpReq)
    if err != nil {
        if isTimeout(err) {
            return ChargeResult{}, ErrTimeout
        }
        return ChargeResult{}, err
    }
    defer resp.Body.Close()

    switch resp.StatusCode {
    case http.StatusOK:
        var result ChargeResult
        if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
            return ChargeResult{}, err
        }
        return result, nil
    case http.StatusNotFound:
        return ChargeResult{}, ErrChargeNotFound
    default:
        return ChargeResult{}, fmt.Errorf("gateway returned status %d", resp.StatusCode)
    }
}

// isTimeout reports whether the transport error represents an
// elapsed deadline rather than a definitive failure.
func isTimeout(err error) bool {
    if errors.Is(err, context.DeadlineExceeded) {
        return true
    }
    var ne net.Error
    if errors.As(err, &ne) && ne.Timeout() {
        return true
    }
    var ue *url.Error
    if errors.As(err, &ue) && ue.Timeout() {
        return true
    }
    return false
}
