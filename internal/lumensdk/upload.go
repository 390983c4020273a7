package lumensdk

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/imroc/req/v3"
	"github.com/lumensite/lumen/internal/utils"
)

const (
	v1UploadInit     = "/api/v1/uploads/init"
	v1UploadChunk    = "/api/v1/uploads/chunk"
	v1UploadComplete = "/api/v1/uploads/complete"
	v1UploadSimple   = "/api/v1/uploads/simple"
	v1UploadSession  = "/api/v1/uploads/{sessionId}"
)

type UploadAPI struct {
	client *req.Client
	config *Config
}

func newUploadAPI(client *req.Client, config *Config) *UploadAPI {
	return &UploadAPI{
		client: client,
		config: config,
	}
}

// Upload runs an upload to completion, reporting progress to onProgress when set
func (u *UploadAPI) Upload(ctx context.Context, params *UploadParams, onProgress ProgressCallback) (*Artifact, error) {
	task, err := u.Start(ctx, params)
	if err != nil {
		return nil, err
	}
	for p := range task.Progress() {
		if onProgress != nil {
			onProgress(p)
		}
	}
	return task.Wait()
}

// Status returns the server side state of a session
func (u *UploadAPI) Status(ctx context.Context, sessionID string) (*Session, error) {
	var sess *Session
	resp, err := u.client.R().
		SetContext(ctx).
		SetPathParam("sessionId", sessionID).
		SetSuccessResult(&sess).
		Get(v1UploadSession)

	if err := handleAPIError(resp, err, "upload status"); err != nil {
		return nil, err
	}
	return sess, nil
}

// Cancel discards a session and its staged chunks
func (u *UploadAPI) Cancel(ctx context.Context, sessionID string) error {
	resp, err := u.client.R().
		SetContext(ctx).
		SetPathParam("sessionId", sessionID).
		SetRetryCount(0).
		Delete(v1UploadSession)

	return handleAPIError(resp, err, "upload cancel")
}

func (u *UploadAPI) init(ctx context.Context, body *InitRequest) (*InitResponse, error) {
	var init *InitResponse
	resp, err := u.client.R().
		SetContext(ctx).
		SetBody(body).
		SetRetryCount(0).
		SetSuccessResult(&init).
		Post(v1UploadInit)

	if err := handleAPIError(resp, err, "upload init"); err != nil {
		return nil, err
	}
	return init, nil
}

// sendChunk puts one chunk. data is held in memory so retries can resend it.
func (u *UploadAPI) sendChunk(ctx context.Context, sessionID, fileName string, index, total uint32, data []byte) (*ChunkResponse, error) {
	var chunk *ChunkResponse
	resp, err := u.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"sessionId":   sessionID,
			"index":       strconv.FormatUint(uint64(index), 10),
			"totalChunks": strconv.FormatUint(uint64(total), 10),
			"fileName":    fileName,
		}).
		SetHeader(HeaderChunkChecksum, utils.BytesSHA256(data)).
		SetContentType("application/octet-stream").
		SetBodyBytes(data).
		SetSuccessResult(&chunk).
		Put(v1UploadChunk)

	if err := handleAPIError(resp, err, fmt.Sprintf("upload chunk %d", index)); err != nil {
		return nil, err
	}
	return chunk, nil
}

func (u *UploadAPI) complete(ctx context.Context, body *CompleteRequest) (*Artifact, error) {
	var artifact *Artifact
	resp, err := u.client.R().
		SetContext(ctx).
		SetBody(body).
		SetRetryCount(0).
		SetSuccessResult(&artifact).
		Post(v1UploadComplete)

	if err := handleAPIError(resp, err, "upload complete"); err != nil {
		return nil, err
	}
	return artifact, nil
}

// simple sends a small file in one request. Progress is reported in bytes.
func (u *UploadAPI) simple(ctx context.Context, path, fileName string, size int64, checksum string, callback func(sent, total int64)) (*Artifact, error) {
	r := u.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetFileUpload(req.FileUpload{
			ParamName:   "file",
			FileName:    fileName,
			FileSize:    size,
			ContentType: "application/octet-stream",
			GetFileContent: func() (io.ReadCloser, error) {
				return os.Open(path)
			},
		}).
		SetUploadCallbackWithInterval(func(info req.UploadInfo) {
			if callback != nil {
				callback(info.UploadedSize, info.FileSize)
			}
		}, 200*time.Millisecond)

	if checksum != "" {
		r.SetFormData(map[string]string{"checksum": checksum})
	}

	var artifact *Artifact
	resp, err := r.SetSuccessResult(&artifact).Put(v1UploadSimple)
	if err := handleAPIError(resp, err, "upload simple"); err != nil {
		return nil, err
	}
	return artifact, nil
}
