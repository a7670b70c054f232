package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"

	"cohortflow/internal/api/middleware"
	"cohortflow/internal/config"
	"cohortflow/internal/domain"
	"cohortflow/internal/errcode"
	"cohortflow/internal/portal"
	"cohortflow/internal/storage"
)

type documentStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	PresignedDownloadURL(ctx context.Context, objectKey string, duration time.Duration, fileName string) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// DocumentHandler 负责申请材料的上传与下载链接。
// 文件先经过类型校验与病毒扫描，再写入对象存储，最后由 portal 登记元数据。
type DocumentHandler struct {
	svc          *portal.Service
	storage      documentStorage
	scanner      malwareScanner
	logger       *slog.Logger
	maxBytes     int64
	allowedTypes []string
	linkTTL      time.Duration
}

// NewDocumentHandler 返回 DocumentHandler；cfg.ScanDisabled 时跳过 clamd。
func NewDocumentHandler(svc *portal.Service, storageClient documentStorage, logger *slog.Logger, cfg config.UploadConfig) *DocumentHandler {
	h := &DocumentHandler{
		svc:          svc,
		storage:      storageClient,
		logger:       logger,
		maxBytes:     cfg.MaxBytes,
		allowedTypes: cfg.AllowedTypes,
		linkTTL:      cfg.LinkTTL,
	}
	if !cfg.ScanDisabled {
		h.scanner = newClamdScanner(cfg.ClamdAddr)
	}
	if h.linkTTL <= 0 {
		h.linkTTL = 10 * time.Minute
	}
	return h
}

type downloadLinkResponse struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}

// Upload 处理 multipart 上传：POST /applicant/applications/:id/documents。
func (h *DocumentHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	sess := middleware.SessionFromContext(c)
	applicationID := c.Param("id")
	logger := middleware.LoggerOr(c, h.logger).With(slog.String("application_id", applicationID))

	// 先确认申请归属且仍是草稿，避免把无主文件写进存储。
	detail, err := h.svc.GetMyApplication(ctx, sess, portal.ApplicationRef{ApplicationID: applicationID})
	if err != nil {
		RespondError(c, err)
		return
	}
	if detail.Application.Status != domain.StatusDraft {
		RespondError(c, errcode.NewValidation("documents can only be added to draft applications"))
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size <= 0 {
		BadRequest(c, "file is empty")
		return
	}
	if h.maxBytes > 0 && file.Size > h.maxBytes {
		BadRequest(c, "file too large")
		return
	}

	detected, err := detectType(file)
	if err != nil {
		RespondError(c, errcode.NewInternal(err))
		return
	}
	if !h.allowed(detected) {
		BadRequest(c, "unsupported file type "+detected.String())
		return
	}

	if h.scanner != nil {
		if err := h.scan(file); err != nil {
			if errors.Is(err, errMalicious) {
				logger.Warn("upload rejected by scanner", slog.Any("error", err))
				BadRequest(c, "malicious file detected")
				return
			}
			RespondError(c, errcode.NewInternal(err))
			return
		}
	}

	reader, err := file.Open()
	if err != nil {
		RespondError(c, errcode.NewInternal(err))
		return
	}
	defer reader.Close()

	mediaType := baseMediaType(detected.String())
	objectKey := storage.DocumentObjectKey(applicationID, detected.Extension())
	if _, err := h.storage.UploadFile(ctx, objectKey, reader, file.Size, mediaType); err != nil {
		RespondError(c, errcode.NewInternal(err))
		return
	}

	doc, err := h.svc.AddDocument(ctx, sess, portal.AddDocumentInput{
		ApplicationID: applicationID,
		Name:          documentName(file.Filename),
		MediaType:     mediaType,
		Size:          file.Size,
		ObjectKey:     objectKey,
	})
	if err != nil {
		// 元数据登记失败时回收已上传的对象。
		if delErr := h.storage.DeleteObject(context.WithoutCancel(ctx), objectKey); delErr != nil {
			logger.Error("cleanup uploaded document failed", slog.String("object_key", objectKey), slog.Any("error", delErr))
		}
		RespondError(c, err)
		return
	}

	logger.Info("document uploaded", slog.String("document_id", doc.ID), slog.Int64("size", doc.Size))
	c.JSON(http.StatusCreated, doc)
}

// DownloadLink 返回材料的限时下载链接；可见性由 portal.GetDocument 判定。
func (h *DocumentHandler) DownloadLink(c *gin.Context) {
	ctx := c.Request.Context()
	var ref portal.DocumentRef
	setDocumentRef(c, &ref)

	doc, err := h.svc.GetDocument(ctx, middleware.SessionFromContext(c), ref)
	if err != nil {
		RespondError(c, err)
		return
	}
	if !storage.IsDocumentKeyFor(doc.ApplicationID, doc.ObjectKey) {
		RespondError(c, errcode.NewInternal(errors.New("document object key does not belong to its application")))
		return
	}

	url, err := h.storage.PresignedDownloadURL(ctx, doc.ObjectKey, h.linkTTL, doc.Name)
	if err != nil {
		RespondError(c, errcode.NewInternal(err))
		return
	}
	c.JSON(http.StatusOK, downloadLinkResponse{URL: url, ExpiresIn: int64(h.linkTTL.Seconds())})
}

func (h *DocumentHandler) allowed(detected *mimetype.MIME) bool {
	if len(h.allowedTypes) == 0 {
		return true
	}
	return slices.ContainsFunc(h.allowedTypes, detected.Is)
}

func (h *DocumentHandler) scan(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return err
	}
	defer reader.Close()
	return h.scanner.Scan(reader)
}

// detectType 按文件内容而非客户端声明的 Content-Type 判定类型。
func detectType(file *multipart.FileHeader) (*mimetype.MIME, error) {
	reader, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return mimetype.DetectReader(reader)
}

func baseMediaType(value string) string {
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}

const maxDocumentNameBytes = 255

func documentName(filename string) string {
	name := strings.ToValidUTF8(filename, "")
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return "document"
	}
	// 按整字符截断，避免写入非法 UTF-8。
	for len(name) > maxDocumentNameBytes {
		_, n := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-n]
	}
	return name
}
