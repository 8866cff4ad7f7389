package storage

import (
	"encoding/base64"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"forkChan/errs"
)

// MaxUploadSize determines the maximum decoded size of an inline image.
const MaxUploadSize int64 = 5 << 20 // 5 Megabyte

// remoteRef matches payloads that start with a URL scheme. The base64
// alphabet has no ':' so an inline payload can never match.
var remoteRef = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)

// Image is a post image about to be stored inline in a post document.
// Filename is optional; when present its extension must match the content.
type Image struct {
	Filename    string
	Data        []byte
	Extension   string
	ContentType string
}

// IsRemote reports whether a stored image payload is a reference to an image
// hosted elsewhere rather than inline-encoded bytes.
func IsRemote(payload string) bool {
	return remoteRef.MatchString(payload)
}

// ImageService validates images and converts them from and to the inline
// payload format (standard base64) kept in the image field of posts.
type ImageService struct {
	imageValidator
}

// imageValidator runs validations on incoming Image data.
// On success, it passes the data on to imageCodec.
// Otherwise, it returns the error of the validation that has failed.
type imageValidator struct {
	maxSize int64
	imageCodec
}

// imageCodec encodes and decodes inline payloads. It assumes the data has been validated.
type imageCodec struct{}

// NewImageService returns an instance of ImageService. A maxSize of zero
// means MaxUploadSize.
func NewImageService(maxSize int64) *ImageService {
	if maxSize <= 0 {
		maxSize = MaxUploadSize
	}
	return &ImageService{
		imageValidator{
			maxSize: maxSize,
		},
	}
}

// Encode runs validations needed for storing an uploaded image inline and
// returns its payload.
func (iv *imageValidator) Encode(img *Image) (string, error) {
	err := runImageValFns(img,
		iv.notEmpty,
		iv.belowMaxSize,
		iv.contentTypeValid,
		iv.extensionValid,
		iv.contentTypeExtensionMatch,
	)
	if err != nil {
		return "", err
	}
	return iv.imageCodec.encode(img), nil
}

// Normalize checks a payload submitted by a client. Remote references pass
// through untouched, inline payloads are decoded and validated like uploads.
// An empty payload means "no image".
func (iv *imageValidator) Normalize(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" || IsRemote(payload) {
		return payload, nil
	}
	img, err := iv.imageCodec.decode(payload)
	if err != nil {
		return "", err
	}
	return iv.Encode(img)
}

// Decode returns the image held inline by a payload.
func (iv *imageValidator) Decode(payload string) (*Image, error) {
	if payload == "" {
		return nil, errs.Errorf(errs.ENOTFOUND, "The post has no image.")
	}
	if IsRemote(payload) {
		return nil, errs.Errorf(errs.EINVALID, "The image is hosted remotely.")
	}
	img, err := iv.imageCodec.decode(payload)
	if err != nil {
		return nil, err
	}
	img.ContentType = http.DetectContentType(img.Data)
	return img, nil
}

// runImageValFns runs any number of functions of type imageValFn on the passed in Image object.
func runImageValFns(img *Image, fns ...imageValFn) error {
	for _, fn := range fns {
		if err := fn(img); err != nil {
			return err
		}
	}
	return nil
}

// A imageValFn is any function that takes in a pointer to an Image object and returns an error.
type imageValFn func(img *Image) error

func (iv *imageValidator) notEmpty(img *Image) error {
	if len(img.Data) == 0 {
		return errs.Errorf(errs.EINVALID, "Image %s is empty.", img.Filename)
	}
	return nil
}

// belowMaxSize makes sure that the image does not exceed the configured size limit.
func (iv *imageValidator) belowMaxSize(img *Image) error {
	if int64(len(img.Data)) > iv.maxSize {
		return errs.Errorf(
			errs.EINVALID,
			"Image "+img.Filename+" exceeds upload size limit of "+strconv.FormatInt(iv.maxSize/1000000, 10)+"MB.",
		)
	}
	return nil
}

// contentTypeValid makes sure that the image is a valid jpeg or png file.
func (iv *imageValidator) contentTypeValid(img *Image) error {
	head := img.Data
	if len(head) > 512 {
		head = head[:512]
	}
	contentType := http.DetectContentType(head)
	if contentType != "image/jpeg" && contentType != "image/png" {
		return errs.Errorf(
			errs.EINVALID,
			"Image "+img.Filename+" invalid content-type, must be image/jpeg or image/png.",
		)
	}
	img.ContentType = contentType
	return nil
}

// extensionValid normalizes the extension of the filename, if there is one.
func (iv *imageValidator) extensionValid(img *Image) error {
	if img.Filename == "" {
		img.Extension = "." + strings.TrimPrefix(img.ContentType, "image/")
		return nil
	}
	ext := strings.ToLower(filepath.Ext(img.Filename))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return errs.Errorf(
			errs.EINVALID,
			"Image "+img.Filename+" invalid extension, must be .jpeg or .png",
		)
	}
	if ext == ".jpg" {
		ext = ".jpeg"
	}
	img.Extension = ext
	return nil
}

// contentTypeExtensionMatch makes sure that the image's filename extension and content type match.
func (iv *imageValidator) contentTypeExtensionMatch(img *Image) error {
	contentType := strings.TrimPrefix(img.ContentType, "image/")
	ext := strings.TrimPrefix(img.Extension, ".")
	if contentType != ext {
		return errs.Errorf(
			errs.EINVALID,
			"Image "+img.Filename+" content-type "+img.ContentType+" does not match extension "+img.Extension+".",
		)
	}
	return nil
}

func (ic *imageCodec) encode(img *Image) string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

func (ic *imageCodec) decode(payload string) (*Image, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errs.Errorf(errs.EINVALID, "The image payload is not valid base64.")
	}
	return &Image{Data: data}, nil
}
