package ocrhttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patlar104/GlobalTranslation/internal/recognition"
)

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestRecognizer_Recognize(t *testing.T) {
	var gotScript, gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/recognize", r.URL.Path)
		gotScript = r.URL.Query().Get("script")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)

		_ = json.NewEncoder(w).Encode(wireResult{Blocks: []wireBlock{
			{
				Text: "Exit",
				Box:  &recognition.Rect{Left: 1, Top: 2, Right: 30, Bottom: 12},
				Lines: []wireLine{
					{Text: "Exit", Box: &recognition.Rect{Left: 1, Top: 2, Right: 30, Bottom: 12}},
				},
			},
			{Text: "no geometry"},
		}})
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	rec, err := client.NewRecognizer(recognition.ScriptChinese)
	require.NoError(t, err)
	defer rec.Close()

	img := &recognition.Image{Data: []byte{0xFF, 0xD8, 0x01}, Format: "jpg"}
	got, err := rec.Recognize(context.Background(), img)

	require.NoError(t, err)
	assert.Equal(t, "chinese", gotScript)
	assert.Equal(t, "image/jpeg", gotContentType)
	assert.Equal(t, img.Data, gotBody)
	require.Len(t, got.Blocks, 2)
	assert.Equal(t, "Exit", got.Blocks[0].Text)
	require.NotNil(t, got.Blocks[0].Box)
	assert.Equal(t, recognition.Rect{Left: 1, Top: 2, Right: 30, Bottom: 12}, *got.Blocks[0].Box)
	assert.Nil(t, got.Blocks[1].Box)
}

func TestRecognizer_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	rec, err := client.NewRecognizer(recognition.ScriptLatin)
	require.NoError(t, err)

	_, err = rec.Recognize(context.Background(), &recognition.Image{Data: []byte{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "engine crashed")
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", contentType("jpeg"))
	assert.Equal(t, "image/jpeg", contentType("JPG"))
	assert.Equal(t, "image/webp", contentType("webp"))
	assert.Equal(t, "image/png", contentType("png"))
	assert.Equal(t, "image/png", contentType(""))
}
