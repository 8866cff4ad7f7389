package storage

import (
	"bytes"
	"encoding/base64"
	"testing"

	"forkChan/errs"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
)

func TestIsRemote(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{"https://cdn.example.com/a.png", true},
		{"http://example.com/a.jpeg", true},
		{"gs://bucket/images/1", true},
		{base64.StdEncoding.EncodeToString(pngHeader), false},
		{"", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			if got := IsRemote(tt.payload); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestImageServiceEncode(t *testing.T) {
	is := NewImageService(0)
	tests := []struct {
		name    string
		img     Image
		wantErr bool
	}{
		{"png", Image{Filename: "cat.png", Data: pngHeader}, false},
		{"jpg extension", Image{Filename: "cat.JPG", Data: jpegHeader}, false},
		{"no filename", Image{Data: jpegHeader}, false},
		{"mismatched extension", Image{Filename: "cat.png", Data: jpegHeader}, true},
		{"not an image", Image{Filename: "cat.png", Data: []byte("hello world")}, true},
		{"gif extension", Image{Filename: "cat.gif", Data: pngHeader}, true},
		{"empty", Image{Filename: "cat.png"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := tt.img
			payload, err := is.Encode(&img)
			if tt.wantErr {
				if !errs.Is(err, errs.EINVALID) {
					t.Fatalf("got %v, want invalid", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			decoded, err := is.Decode(payload)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(decoded.Data, tt.img.Data) {
				t.Error("decoded payload differs from upload")
			}
		})
	}
}

func TestImageServiceMaxSize(t *testing.T) {
	is := NewImageService(16)
	img := Image{Filename: "big.png", Data: pngHeader}
	if _, err := is.Encode(&img); !errs.Is(err, errs.EINVALID) {
		t.Fatalf("got %v, want invalid", err)
	}
}

func TestImageServiceNormalize(t *testing.T) {
	is := NewImageService(0)
	remote := "https://cdn.example.com/a.png"
	if got, err := is.Normalize(remote); err != nil || got != remote {
		t.Fatalf("remote reference changed: %q, %v", got, err)
	}
	if got, err := is.Normalize("  "); err != nil || got != "" {
		t.Fatalf("blank payload: %q, %v", got, err)
	}
	if _, err := is.Normalize("!!!"); !errs.Is(err, errs.EINVALID) {
		t.Fatalf("got %v, want invalid", err)
	}
	inline := base64.StdEncoding.EncodeToString(pngHeader)
	if got, err := is.Normalize(inline); err != nil || got != inline {
		t.Fatalf("inline payload: %q, %v", got, err)
	}
	if _, err := is.Decode(remote); !errs.Is(err, errs.EINVALID) {
		t.Fatalf("decoding a remote reference: got %v", err)
	}
}
