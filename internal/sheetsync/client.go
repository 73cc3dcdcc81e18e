package sheetsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/logger"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/middleware"
)

// Row 表格里的一行。RowID 是端点返回的行标识，单元格全部按字符串传。
type Row struct {
	RowID string   `json:"row_id,omitempty"`
	Cells []string `json:"cells"`
}

// Client 表格镜像端点的 JSON 客户端。
//
// 端点是一个挂在表格前面的 serverless 函数，单 URL、按 action 分发。
// 所有调用走熔断器；写操作先过令牌桶限速（表格 API 有配额）。
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	breaker  *middleware.CircuitBreaker
	limiter  *middleware.TokenBucket
	log      logger.Logger
}

func NewClient(sheets config.SheetsConfig, sync config.SyncConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	rate := int64(sync.WriteRatePerSec)
	if rate <= 0 {
		rate = 5
	}
	return &Client{
		endpoint: sheets.Endpoint,
		token:    sheets.Token,
		http:     &http.Client{Timeout: sheets.Timeout()},
		breaker: middleware.NewCircuitBreaker("sheets-endpoint",
			sync.BreakerFailures, time.Duration(sync.BreakerResetSec)*time.Second),
		limiter: middleware.NewTokenBucket(rate, rate),
		log:     log,
	}
}

type apiRequest struct {
	Action string   `json:"action"` // read / append / update / delete
	Tab    string   `json:"tab"`
	Rows   []Row    `json:"rows,omitempty"`
	RowIDs []string `json:"row_ids,omitempty"`
}

type apiResponse struct {
	OK     bool     `json:"ok"`
	Error  string   `json:"error,omitempty"`
	Rows   []Row    `json:"rows,omitempty"`
	RowIDs []string `json:"row_ids,omitempty"`
}

// ReadRows 拉取整个 tab。
func (c *Client) ReadRows(ctx context.Context, tab string) ([]Row, error) {
	resp, err := c.call(ctx, apiRequest{Action: "read", Tab: tab})
	if err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// AppendRows 追加行，按入参顺序返回端点分配的行标识。
func (c *Client) AppendRows(ctx context.Context, tab string, rows []Row) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, apiRequest{Action: "append", Tab: tab, Rows: rows})
	if err != nil {
		return nil, err
	}
	if len(resp.RowIDs) != len(rows) {
		return nil, fmt.Errorf("append returned %d row ids for %d rows", len(resp.RowIDs), len(rows))
	}
	return resp.RowIDs, nil
}

// UpdateRows 覆盖写指定行（每行必须带 RowID）。
func (c *Client) UpdateRows(ctx context.Context, tab string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		if r.RowID == "" {
			return fmt.Errorf("update row without row id")
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.call(ctx, apiRequest{Action: "update", Tab: tab, Rows: rows})
	return err
}

// DeleteRows 删除指定行。
func (c *Client) DeleteRows(ctx context.Context, tab string, rowIDs []string) error {
	if len(rowIDs) == 0 {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := c.call(ctx, apiRequest{Action: "delete", Tab: tab, RowIDs: rowIDs})
	return err
}

func (c *Client) call(ctx context.Context, req apiRequest) (*apiResponse, error) {
	if c == nil || c.endpoint == "" {
		return nil, fmt.Errorf("sheets endpoint not configured")
	}

	var out apiResponse
	err := c.breaker.Call(ctx, func() error {
		body, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.token)
		}

		httpResp, err := c.http.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%s %s: %w", req.Action, req.Tab, err)
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, 16<<20))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if httpResp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s %s: endpoint returned %d", req.Action, req.Tab, httpResp.StatusCode)
		}

		out = apiResponse{}
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if !out.OK {
			msg := out.Error
			if msg == "" {
				msg = "unknown endpoint error"
			}
			return fmt.Errorf("%s %s: %s", req.Action, req.Tab, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
