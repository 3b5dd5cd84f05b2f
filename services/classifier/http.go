package classifiersvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	_ "golang.org/x/image/webp" // register the webp decoder for imaging.Decode

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/recognition"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxWidth = 1600
	jpegQuality     = 90
)

var ErrUnexpectedStatus = errors.New("classifier answered with an error status")

type HTTPClassifier struct {
	url      string
	apiKey   string
	maxWidth int
	client   *rest.Client
}

var _ recognition.Classifier = (*HTTPClassifier)(nil)

// NewHTTPClassifier posts photos to the face-recognition service at conf.Classifier.URL.
func NewHTTPClassifier(conf *core.Config) *HTTPClassifier {
	timeout := conf.Classifier.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxWidth := conf.Classifier.MaxImageWidth
	if maxWidth <= 0 {
		maxWidth = defaultMaxWidth
	}
	return &HTTPClassifier{
		url:      conf.Classifier.URL,
		apiKey:   conf.Classifier.APIKey,
		maxWidth: maxWidth,
		client:   &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
	}
}

func (c *HTTPClassifier) Recognize(ctx context.Context, image io.Reader, filename string) (string, error) {
	photo, err := normalizePhoto(image, c.maxWidth)
	if err != nil {
		return "", err
	}

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("image", jpegName(filename))
	if err != nil {
		return "", errors.Wrap(err, "creating image part")
	}
	if _, err = part.Write(photo); err != nil {
		return "", errors.Wrap(err, "writing image part")
	}
	if err = mw.Close(); err != nil {
		return "", errors.Wrap(err, "closing multipart body")
	}

	headers := map[string]string{
		"Content-Type": mw.FormDataContentType(),
		"Accept":       "application/json, text/plain",
	}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	res, err := c.client.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: c.url,
		Headers: headers,
		Body:    body.Bytes(),
	})
	if err != nil {
		return "", errors.Wrap(err, "calling classifier")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return "", errors.Wrapf(ErrUnexpectedStatus, "status %d: %s", res.StatusCode, strings.TrimSpace(res.Body))
	}
	return decodeOutput(res.Body), nil
}

// normalizePhoto applies the EXIF orientation, shrinks the photo to maxWidth and re-encodes it as JPEG.
func normalizePhoto(r io.Reader, maxWidth int) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "decoding photo")
	}
	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err = imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, errors.Wrap(err, "encoding photo")
	}
	return buf.Bytes(), nil
}

func jpegName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "photo"
	}
	return strings.TrimSuffix(base, path.Ext(base)) + ".jpg"
}

// decodeOutput accepts {"result": "..."}, {"data": [...]} or the raw lines themselves.
func decodeOutput(body string) string {
	var out struct {
		Result *string       `json:"result"`
		Data   []interface{} `json:"data"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return body
	}
	if out.Result != nil {
		return *out.Result
	}
	if out.Data != nil {
		lines := make([]string, 0, len(out.Data))
		for _, d := range out.Data {
			lines = append(lines, fmt.Sprint(d))
		}
		return strings.Join(lines, "\n")
	}
	return body
}
