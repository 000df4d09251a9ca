// Package signing submits generated certificates to the national electronic
// signature service and stores the returned signed artifact next to the input.
package signing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eduka-ec/certflow/internal/pkg/env"
)

// Metadata accompanies a signature request for auditing at the signing server.
type Metadata struct {
	NationalID string `json:"cedula"`
	FullName   string `json:"nombres"`
	CourseName string `json:"curso"`
}

// Service signs a PDF artifact and returns the path of the signed copy.
type Service interface {
	Sign(ctx context.Context, pdfPath string, meta Metadata) (string, error)
}

// Client calls an HTTP signature endpoint (FirmaEC style: base64 PDF in,
// signed base64 out).
type Client struct {
	Endpoint    string
	P12Alias    string
	P12Password string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a signing client from environment configuration.
func NewClientFromEnv() *Client {
	return &Client{
		Endpoint:    strings.TrimSpace(env.GetEnv("SIGN_ENDPOINT", "")),
		P12Alias:    strings.TrimSpace(env.GetEnv("SIGN_P12_ALIAS", "")),
		P12Password: env.GetEnv("SIGN_P12_PASSWORD", ""),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type signRequest struct {
	Document string   `json:"documento"`
	FileName string   `json:"nombreArchivo"`
	Alias    string   `json:"alias,omitempty"`
	Password string   `json:"password,omitempty"`
	Metadata Metadata `json:"metadata"`
}

type signResponse struct {
	SignedPDF string `json:"pdfFirmado"`
}

// Sign uploads the artifact and writes the signed copy with a _firmado suffix.
func (c *Client) Sign(ctx context.Context, pdfPath string, meta Metadata) (string, error) {
	if c.Endpoint == "" {
		return "", errors.New("SIGN_ENDPOINT is not configured")
	}

	raw, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}

	payload := signRequest{
		Document: base64.StdEncoding.EncodeToString(raw),
		FileName: filepath.Base(pdfPath),
		Alias:    c.P12Alias,
		Password: c.P12Password,
		Metadata: meta,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("signing service returned status %d", resp.StatusCode)
	}

	var parsed signResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode signing response: %w", err)
	}
	if parsed.SignedPDF == "" {
		return "", errors.New("signing service did not return a signed document")
	}

	signed, err := base64.StdEncoding.DecodeString(parsed.SignedPDF)
	if err != nil {
		return "", fmt.Errorf("decode signed document: %w", err)
	}

	ext := filepath.Ext(pdfPath)
	signedPath := strings.TrimSuffix(pdfPath, ext) + "_firmado" + ext
	if err := os.WriteFile(signedPath, signed, 0o644); err != nil {
		return "", fmt.Errorf("write signed artifact: %w", err)
	}

	return signedPath, nil
}
