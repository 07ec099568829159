package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatrelay/core"
)

func TestValidate_AcceptsPlainText(t *testing.T) {
	doc, err := Validate("notes.txt", MimeText, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.Filename)
	assert.Equal(t, int64(5), doc.Size)
	assert.Zero(t, doc.Pages)
}

func TestValidate_AcceptsMarkdown(t *testing.T) {
	_, err := Validate("readme.md", MimeMarkdown, []byte("# title"))
	assert.NoError(t, err)
}

func TestValidate_RejectsMissingFilename(t *testing.T) {
	_, err := Validate("", MimeText, []byte("hello"))
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "file name")
}

func TestValidate_RejectsOversizedFile(t *testing.T) {
	_, err := Validate("big.txt", MimeText, make([]byte, MaxFileSize+1))
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "exceeds maximum")
}

func TestValidate_RejectsUnsupportedMimeType(t *testing.T) {
	_, err := Validate("img.png", "image/png", []byte{0x89, 0x50})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "image/png")
}

func TestValidate_RejectsCorruptPDF(t *testing.T) {
	_, err := Validate("broken.pdf", MimePDF, []byte("definitely not a pdf"))
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "broken.pdf")
}
