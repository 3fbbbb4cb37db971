package util

import "errors"

var (
	ErrNoExtractableText = errors.New("no extractable text found in PDF")
	ErrTextTooShort      = errors.New("extracted text below minimum length")
	ErrEmbeddingMismatch = errors.New("embedding count does not match input count")

	ErrBlobNotFound = errors.New("blob not found")
)
