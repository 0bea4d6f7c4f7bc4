package storage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 10 {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrepareImageResizesWideImages(t *testing.T) {
	prepared, err := PrepareImage(pngBytes(t, 2160, 1080))
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", prepared.ContentType)
	assert.Equal(t, ".jpg", prepared.Ext)

	img, err := imaging.Decode(bytes.NewReader(prepared.Body))
	require.NoError(t, err)
	assert.Equal(t, 1080, img.Bounds().Dx())
	assert.Equal(t, 540, img.Bounds().Dy())
}

func TestPrepareImageKeepsSmallImages(t *testing.T) {
	prepared, err := PrepareImage(pngBytes(t, 300, 200))
	require.NoError(t, err)

	img, err := imaging.Decode(bytes.NewReader(prepared.Body))
	require.NoError(t, err)
	assert.Equal(t, 300, img.Bounds().Dx())
}

func TestPrepareImageRejectsOtherTypes(t *testing.T) {
	_, err := PrepareImage([]byte("%PDF-1.4 not an image"))
	assert.True(t, errors.Is(err, ErrUnsupportedImage))

	_, err = PrepareImage(nil)
	assert.True(t, errors.Is(err, ErrUnsupportedImage))
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3StorePut(t *testing.T) {
	fake := &fakeS3{}
	store := &S3Store{client: fake, bucket: "inbox-media", region: "eu-west-1"}

	url, err := store.Put(context.Background(), "shared-posts/a/x.jpg", "image/jpeg", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "https://inbox-media.s3.eu-west-1.amazonaws.com/shared-posts/a/x.jpg", url)
	assert.Equal(t, "inbox-media", aws.ToString(fake.input.Bucket))
	assert.Equal(t, types.ObjectCannedACLPublicRead, fake.input.ACL)
	assert.Equal(t, []byte("data"), fake.body)

	fake.err = errors.New("denied")
	_, err = store.Put(context.Background(), "k", "image/jpeg", nil)
	assert.Error(t, err)
}

func TestSharedPostKey(t *testing.T) {
	key := SharedPostKey("alice", ".jpg")
	assert.True(t, strings.HasPrefix(key, "shared-posts/alice/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
}
