package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"cv-ingest-go/internal/config"
	"cv-ingest-go/internal/constants"
	"cv-ingest-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"
)

var (
	// ErrLarkAuth 获取 app_access_token 失败
	ErrLarkAuth = errors.New("lark authentication failed")
	// ErrLarkUpload 上传文件失败或没有返回 file_token
	ErrLarkUpload = errors.New("lark file upload failed")
)

// LarkError 开放平台返回 code != 0
type LarkError struct {
	Op   string
	Code int
	Msg  string
}

func (e *LarkError) Error() string {
	return fmt.Sprintf("lark %s failed: code=%d msg=%s", e.Op, e.Code, e.Msg)
}

// larkEnvelope 开放平台统一的响应外层
type larkEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type larkTokenResponse struct {
	Code           int    `json:"code"`
	Msg            string `json:"msg"`
	AppAccessToken string `json:"app_access_token"`
	Expire         int    `json:"expire"` // 秒
}

type larkListData struct {
	HasMore   bool   `json:"has_more"`
	PageToken string `json:"page_token"`
	Total     int    `json:"total"`
	Items     []struct {
		RecordID string                     `json:"record_id"`
		Fields   map[string]json.RawMessage `json:"fields"`
	} `json:"items"`
}

type larkUploadData struct {
	FileToken string `json:"file_token"`
}

type larkCreateData struct {
	Record struct {
		RecordID string `json:"record_id"`
	} `json:"record"`
}

// LarkClient Lark 多维表格与云空间的最小客户端：鉴权、列出记录、上传文件、新建记录
type LarkClient struct {
	cfg     config.LarkConfig
	client  *client.Client
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// LarkOption LarkClient 的配置选项
type LarkOption func(*LarkClient)

// WithLarkLogger 设置日志记录器
func WithLarkLogger(logger zerolog.Logger) LarkOption {
	return func(c *LarkClient) {
		c.logger = logger
	}
}

// NewLarkClient 创建客户端，不会发起任何网络请求
func NewLarkClient(cfg config.LarkConfig, opts ...LarkOption) (*LarkClient, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("lark app_id/app_secret 不能为空")
	}
	if cfg.BaseID == "" || cfg.TableID == "" {
		return nil, fmt.Errorf("lark base_id/table_id 不能为空")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = constants.DefaultLarkAPIBase
	}
	if cfg.FileLinkBase == "" {
		cfg.FileLinkBase = constants.DefaultLarkFileLinkBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")

	hc, err := client.NewClient(client.WithDialTimeout(10 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 客户端失败: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &LarkClient{
		cfg:     cfg,
		client:  hc,
		timeout: timeout,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *LarkClient) recordsURL() string {
	return fmt.Sprintf("%s/bitable/v1/apps/%s/tables/%s/records", c.cfg.APIBase, c.cfg.BaseID, c.cfg.TableID)
}

// accessToken 返回缓存的 app_access_token，过期前 60 秒刷新
func (c *LarkClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"app_id":     c.cfg.AppID,
		"app_secret": c.cfg.AppSecret,
	})
	if err != nil {
		return "", fmt.Errorf("序列化鉴权请求失败: %w", err)
	}

	status, respBody, err := c.do(ctx, consts.MethodPost, c.cfg.APIBase+"/auth/v3/app_access_token/internal", "application/json", "", body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLarkAuth, err)
	}

	var tr larkTokenResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", fmt.Errorf("%w: status %d, 无法解析响应: %v", ErrLarkAuth, status, err)
	}
	if tr.Code != 0 || tr.AppAccessToken == "" {
		return "", fmt.Errorf("%w: %w", ErrLarkAuth, &LarkError{Op: "auth", Code: tr.Code, Msg: tr.Msg})
	}

	ttl := time.Duration(tr.Expire)*time.Second - constants.LarkTokenRefreshMargin
	if ttl < 0 {
		ttl = 0
	}
	c.token = tr.AppAccessToken
	c.tokenExpiry = c.now().Add(ttl)
	c.logger.Debug().Int("expire", tr.Expire).Msg("已获取 Lark app_access_token")
	return c.token, nil
}

// ListRecords 分页拉取表中全部记录
func (c *LarkClient) ListRecords(ctx context.Context) ([]types.ExistingRecord, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var (
		records   []types.ExistingRecord
		pageToken string
	)
	for {
		q := url.Values{}
		q.Set("page_size", strconv.Itoa(constants.LarkListPageSize))
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}

		var data larkListData
		if err := c.call(ctx, "list records", consts.MethodGet, c.recordsURL()+"?"+q.Encode(), "", token, nil, &data); err != nil {
			return nil, err
		}

		for _, item := range data.Items {
			rec := types.ExistingRecord{RecordID: item.RecordID}
			if raw, ok := item.Fields[constants.ColumnFileCV]; ok {
				var cell types.LinkCell
				if err := json.Unmarshal(raw, &cell); err == nil && cell.Text != "" {
					rec.FileCV = &cell
				}
			}
			records = append(records, rec)
		}

		if !data.HasMore || data.PageToken == "" {
			break
		}
		pageToken = data.PageToken
	}

	c.logger.Info().Int("records", len(records)).Msg("已拉取多维表格现有记录")
	return records, nil
}

// UploadFile 把本地文件上传到云空间目录 parent_node
func (c *LarkClient) UploadFile(ctx context.Context, path string) (types.FileRef, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return types.FileRef{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return types.FileRef{}, fmt.Errorf("打开待上传文件失败: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return types.FileRef{}, fmt.Errorf("读取文件信息失败: %w", err)
	}

	name := filepath.Base(path)
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"file_name", name},
		{"parent_type", "explorer"},
		{"parent_node", c.cfg.ParentNode},
		{"size", strconv.FormatInt(info.Size(), 10)},
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return types.FileRef{}, fmt.Errorf("构造上传表单失败: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return types.FileRef{}, fmt.Errorf("构造上传表单失败: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return types.FileRef{}, fmt.Errorf("读取待上传文件失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return types.FileRef{}, fmt.Errorf("构造上传表单失败: %w", err)
	}

	var data larkUploadData
	if err := c.call(ctx, "upload file", consts.MethodPost, c.cfg.APIBase+"/drive/v1/files/upload_all", w.FormDataContentType(), token, buf.Bytes(), &data); err != nil {
		return types.FileRef{}, fmt.Errorf("%w: %w", ErrLarkUpload, err)
	}
	if data.FileToken == "" {
		return types.FileRef{}, fmt.Errorf("%w: empty file_token for %s", ErrLarkUpload, name)
	}

	return types.FileRef{
		Token: data.FileToken,
		Name:  name,
		Link:  c.cfg.FileLinkBase + data.FileToken,
	}, nil
}

// CreateRecord 新建一条记录，返回 record_id
func (c *LarkClient) CreateRecord(ctx context.Context, fields types.PublishRecord) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return "", fmt.Errorf("序列化记录失败: %w", err)
	}

	var data larkCreateData
	if err := c.call(ctx, "create record", consts.MethodPost, c.recordsURL(), "application/json", token, body, &data); err != nil {
		return "", err
	}
	return data.Record.RecordID, nil
}

// call 发送请求并解析统一响应外层，code != 0 视为失败
func (c *LarkClient) call(ctx context.Context, op, method, uri, contentType, token string, body []byte, out any) error {
	status, respBody, err := c.do(ctx, method, uri, contentType, token, body)
	if err != nil {
		return fmt.Errorf("lark %s: %w", op, err)
	}

	var env larkEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("lark %s: status %d, 无法解析响应: %w", op, status, err)
	}
	if env.Code != 0 {
		return &LarkError{Op: op, Code: env.Code, Msg: env.Msg}
	}
	if status != consts.StatusOK {
		return fmt.Errorf("lark %s: unexpected status %d", op, status)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("lark %s: 解析 data 失败: %w", op, err)
		}
	}
	return nil
}

func (c *LarkClient) do(ctx context.Context, method, uri, contentType, token string, body []byte) (int, []byte, error) {
	req, resp := protocol.AcquireRequest(), protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.SetMethod(method)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if body != nil {
		req.SetBody(body)
	}

	if err := c.client.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		return 0, nil, err
	}

	// resp 会被回收，必须拷贝
	respBody := append([]byte(nil), resp.Body()...)
	return resp.StatusCode(), respBody, nil
}
