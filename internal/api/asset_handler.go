package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"

	"careerHub/internal/profile"
	"careerHub/internal/storage"
)

// applicationPrefix 申请表附件的对象前缀。
const applicationPrefix = "applications"

// resumePrefix worker 生成的简历 PDF 前缀。
const resumePrefix = "resumes"

// ObjectStore 是处理器依赖的对象存储能力，便于测试替换。
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	GeneratePresignedURLWithParams(ctx context.Context, objectKey string, duration time.Duration, params map[string]string) (string, error)
	DeleteObjects(ctx context.Context, keys []string) error
}

var errUploadRejected = errors.New("upload rejected")

// AssetHandler 负责上传文件的扫描、入库与访问。
type AssetHandler struct {
	Storage ObjectStore
	Scanner storage.Scanner
	Logger  *slog.Logger
}

// NewAssetHandler 返回 AssetHandler 实例，scanner 为 nil 时跳过病毒扫描。
func NewAssetHandler(storageClient ObjectStore, scanner storage.Scanner, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{
		Storage: storageClient,
		Scanner: scanner,
		Logger:  logger,
	}
}

// storeUpload 校验并扫描文件后上传，图片额外生成缩略图。
// 校验失败返回包装了 errUploadRejected 的错误。
func (h *AssetHandler) storeUpload(ctx context.Context, userID uint, prefix, field string, file *multipart.FileHeader) (profile.StoredFile, error) {
	if err := profile.ValidateFile(field, file.Filename, file.Size); err != nil {
		return profile.StoredFile{}, fmt.Errorf("%w: %v", errUploadRejected, err)
	}

	reader, err := file.Open()
	if err != nil {
		return profile.StoredFile{}, fmt.Errorf("open %s: %w", field, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, profile.MaxUploadBytes+1))
	if err != nil {
		return profile.StoredFile{}, fmt.Errorf("read %s: %w", field, err)
	}

	if h.Scanner != nil {
		if err := h.Scanner.Scan(bytes.NewReader(data)); err != nil {
			if errors.Is(err, storage.ErrMaliciousFile) {
				return profile.StoredFile{}, fmt.Errorf("%w: %v", errUploadRejected, err)
			}
			return profile.StoredFile{}, fmt.Errorf("scan %s: %w", field, err)
		}
	}

	stored := profile.StoredFile{Key: profile.ObjectKey(prefix, userID, field, file.Filename)}
	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if _, err := h.Storage.UploadFile(ctx, stored.Key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return profile.StoredFile{}, fmt.Errorf("upload %s: %w", field, err)
	}

	if rule, _ := profile.RuleFor(field); rule.Image {
		thumb, err := storage.Thumbnail(bytes.NewReader(data))
		if err != nil {
			return profile.StoredFile{}, fmt.Errorf("%w: %s is not a readable image", errUploadRejected, field)
		}
		thumbKey := profile.ThumbnailKey(stored.Key)
		if _, err := h.Storage.UploadFile(ctx, thumbKey, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg"); err != nil {
			return profile.StoredFile{}, fmt.Errorf("upload %s thumbnail: %w", field, err)
		}
		stored.ThumbnailKey = thumbKey
	}
	return stored, nil
}

// storeUploads 处理表单中出现的上传字段，任一失败时清理已上传的对象。
func (h *AssetHandler) storeUploads(c *gin.Context, userID uint, prefix string, fields []string) (map[string]profile.StoredFile, error) {
	files := make(map[string]profile.StoredFile)
	form, err := c.MultipartForm()
	if err != nil {
		return files, nil
	}

	for _, field := range fields {
		headers := form.File[field]
		if len(headers) == 0 {
			continue
		}
		stored, err := h.storeUpload(c.Request.Context(), userID, prefix, field, headers[0])
		if err != nil {
			h.discard(c.Request.Context(), files)
			return nil, err
		}
		files[field] = stored
	}
	return files, nil
}

// discard 删除本次请求已上传的对象。
func (h *AssetHandler) discard(ctx context.Context, files map[string]profile.StoredFile) {
	keys := make([]string, 0, len(files)*2)
	for _, f := range files {
		keys = append(keys, f.Key)
		if f.ThumbnailKey != "" {
			keys = append(keys, f.ThumbnailKey)
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := h.Storage.DeleteObjects(ctx, keys); err != nil {
		h.logger().Warn("discard uploads failed", slog.Any("error", err))
	}
}

// writeUploadError 将上传错误映射为响应。
func writeUploadError(c *gin.Context, log *slog.Logger, err error) {
	if errors.Is(err, errUploadRejected) {
		BadRequest(c, err.Error())
		return
	}
	log.Error("store upload failed", slog.Any("error", err))
	Internal(c, "failed to store file")
}

// GetAssetURL 返回用户自有文件的临时预签名 URL。
func (h *AssetHandler) GetAssetURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}

	if !profile.OwnsKey(userID, objectKey, profile.StoragePrefix, applicationPrefix, resumePrefix) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.Storage.GeneratePresignedURL(c.Request.Context(), objectKey, 15*time.Minute)
	if err != nil {
		loggerFrom(c, h.Logger).Error("generate presigned url", slog.String("error", err.Error()))
		Internal(c, "failed to generate url")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

func (h *AssetHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
