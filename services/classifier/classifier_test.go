package classifiersvc

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core"
)

func pngPhoto(t *testing.T, w, h int) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf
}

func TestHTTPClassifier_Recognize(t *testing.T) {
	var (
		gotAuth  string
		gotName  string
		gotWidth int
	)
	reply := `{"result": "101 Alice (0.93)\n102 Bob"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		file, header, err := r.FormFile("image")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotName = header.Filename
		cfg, err := jpeg.DecodeConfig(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotWidth = cfg.Width
		_, _ = io.WriteString(w, reply)
	}))
	defer srv.Close()

	conf := &core.Config{Classifier: core.ClassifierConfig{URL: srv.URL, APIKey: "secret", MaxImageWidth: 64}}
	c := NewHTTPClassifier(conf)

	out, err := c.Recognize(context.Background(), pngPhoto(t, 200, 100), "uploads/class.png")
	require.NoError(t, err)
	assert.Equal(t, "101 Alice (0.93)\n102 Bob", out)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "class.jpg", gotName)
	assert.Equal(t, 64, gotWidth)

	// small photos keep their width
	_, err = c.Recognize(context.Background(), pngPhoto(t, 32, 32), "small.png")
	require.NoError(t, err)
	assert.Equal(t, 32, gotWidth)
}

func TestHTTPClassifier_errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClassifier(&core.Config{Classifier: core.ClassifierConfig{URL: srv.URL}})

	_, err := c.Recognize(context.Background(), pngPhoto(t, 10, 10), "a.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	assert.Contains(t, err.Error(), "model not loaded")

	_, err = c.Recognize(context.Background(), strings.NewReader("not an image"), "a.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding photo")
}

func Test_decodeOutput(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "result field", body: `{"result": "101 Alice"}`, want: "101 Alice"},
		{name: "data lines", body: `{"data": ["101 Alice", "102 Bob"]}`, want: "101 Alice\n102 Bob"},
		{name: "plain text", body: "101 Alice\n102 Bob\n", want: "101 Alice\n102 Bob\n"},
		{name: "unknown json", body: `{"faces": 2}`, want: `{"faces": 2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeOutput(tt.body))
		})
	}
}

func Test_jpegName(t *testing.T) {
	assert.Equal(t, "class.jpg", jpegName("class.webp"))
	assert.Equal(t, "photo.jpg", jpegName(""))
	assert.Equal(t, "img.jpg", jpegName(`C:\photos\img.PNG`))
}

func TestStaticClassifier(t *testing.T) {
	c := NewStaticClassifier("101 Alice")
	out, err := c.Recognize(context.Background(), strings.NewReader("x"), "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "101 Alice", out)

	c.Err = errors.New("offline")
	_, err = c.Recognize(context.Background(), strings.NewReader("x"), "a.jpg")
	assert.EqualError(t, err, "offline")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewStaticClassifier("").Recognize(ctx, strings.NewReader("x"), "a.jpg")
	assert.ErrorIs(t, err, context.Canceled)
}
