// Package invoicing talks to the external electronic invoicing service. The
// reconciliation loop treats presence of the authorization code as the sole
// signal that the tax authority accepted a document.
package invoicing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eduka-ec/certflow/internal/pkg/env"
)

const defaultBaseURL = "https://api.contifico.com/sistema/api/v1"

// Amount tolerates both string and numeric JSON encodings; the API is not
// consistent about which one it returns for totals.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	s = strings.Trim(s, `"`)
	if s == "null" {
		s = ""
	}
	*a = Amount(s)
	return nil
}

// Document is the wire shape of an invoicing document.
type Document struct {
	ID            string `json:"id"`
	Number        string `json:"documento"`
	Status        string `json:"estado"`
	Signed        bool   `json:"firmado"`
	Authorization string `json:"autorizacion"`
	RideURL       string `json:"url_ride"`
	XMLURL        string `json:"url_xml"`
	Total         Amount `json:"total"`
}

// Customer identifies the invoice recipient at the invoicing service.
type Customer struct {
	NationalID string
	Email      string
	FirstName  string
	LastName   string
	Phone      string
	Address    string
}

// CreateInvoiceInput describes one zero-VAT invoice for a course payment.
type CreateInvoiceInput struct {
	DocumentNumber string
	CustomerID     string
	Customer       Customer
	Total          float64
	Description    string
}

// Client is the contract the reconciliation loop and the payment flow depend on.
type Client interface {
	GetDocumentByID(ctx context.Context, id string) (*Document, error)
	CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*Document, error)
	EnsureCustomer(ctx context.Context, c Customer) (string, error)
	NextDocumentNumber(ctx context.Context) (string, error)
	SubmitToTaxAuthority(ctx context.Context, documentID string) error
}

// HTTPClient implements Client against the invoicing REST API.
type HTTPClient struct {
	BaseURL   string
	APIKey    string
	POSToken  string
	ProductID string

	HTTPClient *http.Client
}

// NewClientFromEnv builds an invoicing client from environment configuration.
func NewClientFromEnv() *HTTPClient {
	return &HTTPClient{
		BaseURL:   strings.TrimRight(env.GetEnv("INVOICING_API_BASE_URL", defaultBaseURL), "/"),
		APIKey:    strings.TrimSpace(env.GetEnv("INVOICING_API_KEY", "")),
		POSToken:  strings.TrimSpace(env.GetEnv("INVOICING_POS_TOKEN", "")),
		ProductID: strings.TrimSpace(env.GetEnv("INVOICING_PRODUCT_ID", "")),
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, payload interface{}, out interface{}) error {
	if c.APIKey == "" {
		return errors.New("INVOICING_API_KEY is not configured")
	}

	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("invoicing API %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetDocumentByID fetches the current state of a document.
func (c *HTTPClient) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("document id is required")
	}
	var doc Document
	if err := c.do(ctx, http.MethodGet, "/documento/"+id+"/", nil, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

type personPayload struct {
	Tipo          string  `json:"tipo"`
	RazonSocial   string  `json:"razon_social"`
	Telefonos     string  `json:"telefonos"`
	RUC           string  `json:"ruc"`
	Cedula        string  `json:"cedula"`
	Direccion     string  `json:"direccion"`
	Email         string  `json:"email"`
	EsExtranjero  bool    `json:"es_extranjero"`
	EsCliente     bool    `json:"es_cliente"`
	EsProveedor   bool    `json:"es_proveedor"`
	EsEmpleado    bool    `json:"es_empleado"`
	EsVendedor    bool    `json:"es_vendedor"`
	AplicarCupo   bool    `json:"aplicar_cupo"`
	PorcDescuento *string `json:"porcentaje_descuento"`
}

type personResult struct {
	ID string `json:"id"`
}

// EnsureCustomer looks up the customer by national id and creates it when absent.
func (c *HTTPClient) EnsureCustomer(ctx context.Context, cust Customer) (string, error) {
	q := url.Values{}
	q.Set("identificacion", cust.NationalID)

	var found []personResult
	if err := c.do(ctx, http.MethodGet, "/persona/", q, nil, &found); err != nil {
		return "", err
	}
	if len(found) > 0 && found[0].ID != "" {
		return found[0].ID, nil
	}

	payload := personPayload{
		Tipo:        "N",
		RazonSocial: strings.TrimSpace(cust.FirstName + " " + cust.LastName),
		Telefonos:   cust.Phone,
		Cedula:      cust.NationalID,
		Direccion:   cust.Address,
		Email:       cust.Email,
		EsCliente:   true,
	}
	q = url.Values{}
	q.Set("pos", c.POSToken)

	var created personResult
	if err := c.do(ctx, http.MethodPost, "/persona/", q, payload, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("invoicing API did not return a customer id")
	}
	return created.ID, nil
}

type invoiceDetail struct {
	ProductID      string  `json:"producto_id"`
	Quantity       int     `json:"cantidad"`
	Price          float64 `json:"precio"`
	VATPercent     int     `json:"porcentaje_iva"`
	DiscountPct    int     `json:"porcentaje_descuento"`
	BaseZero       float64 `json:"base_cero"`
	BaseTaxable    float64 `json:"base_gravable"`
	BaseNonTaxable float64 `json:"base_no_gravable"`
	ICEValue       float64 `json:"valor_ice"`
	ICE            float64 `json:"ice"`
	Description    string  `json:"descripcion"`
}

type invoiceClient struct {
	ID          string `json:"id"`
	Cedula      string `json:"cedula"`
	Email       string `json:"email"`
	RazonSocial string `json:"razon_social"`
	Direccion   string `json:"direccion"`
	Telefonos   string `json:"telefonos"`
	Tipo        string `json:"tipo"`
	EsCliente   bool   `json:"es_cliente"`
}

type invoicePayload struct {
	POS           string          `json:"pos"`
	FechaEmision  string          `json:"fecha_emision"`
	TipoDocumento string          `json:"tipo_documento"`
	TipoRegistro  string          `json:"tipo_registro"`
	Documento     string          `json:"documento"`
	Autorizacion  string          `json:"autorizacion"`
	Electronico   bool            `json:"electronico"`
	Subtotal0     float64         `json:"subtotal_0"`
	Subtotal12    float64         `json:"subtotal_12"`
	IVA           float64         `json:"iva"`
	ICE           float64         `json:"ice"`
	Total         float64         `json:"total"`
	Cliente       invoiceClient   `json:"cliente"`
	Detalles      []invoiceDetail `json:"detalles"`
}

// CreateInvoice issues one zero-VAT electronic invoice.
func (c *HTTPClient) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*Document, error) {
	payload := invoicePayload{
		POS:           c.POSToken,
		FechaEmision:  formatDateDMY(time.Now()),
		TipoDocumento: "FAC",
		TipoRegistro:  "CLI",
		Documento:     in.DocumentNumber,
		Electronico:   true,
		Subtotal0:     in.Total,
		Total:         in.Total,
		Cliente: invoiceClient{
			ID:          in.CustomerID,
			Cedula:      in.Customer.NationalID,
			Email:       in.Customer.Email,
			RazonSocial: strings.TrimSpace(in.Customer.FirstName + " " + in.Customer.LastName),
			Direccion:   in.Customer.Address,
			Telefonos:   in.Customer.Phone,
			Tipo:        "N",
			EsCliente:   true,
		},
		Detalles: []invoiceDetail{
			{
				ProductID:   c.ProductID,
				Quantity:    1,
				Price:       in.Total,
				BaseZero:    in.Total,
				Description: in.Description,
			},
		},
	}

	var doc Document
	if err := c.do(ctx, http.MethodPost, "/documento/", nil, payload, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

type registryPage struct {
	Results []Document `json:"results"`
}

// NextDocumentNumber scans the recent document registry and formats the next
// sequential invoice number (estab-pto-sequence).
func (c *HTTPClient) NextDocumentNumber(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("tipo", "FAC")
	q.Set("tipo_registro", "CLI")
	q.Set("result_size", "50")
	q.Set("result_page", "1")

	var page registryPage
	if err := c.do(ctx, http.MethodGet, "/registro/documento/", q, nil, &page); err != nil {
		return "", err
	}

	max := 0
	for _, doc := range page.Results {
		parts := strings.Split(doc.Number, "-")
		if len(parts) != 3 {
			continue
		}
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}

	return formatDocumentNumber(max + 1), nil
}

// SubmitToTaxAuthority asks the invoicing service to forward the document.
func (c *HTTPClient) SubmitToTaxAuthority(ctx context.Context, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return errors.New("document id is required")
	}
	return c.do(ctx, http.MethodPut, "/documento/"+documentID+"/sri/", nil, nil, nil)
}

func formatDateDMY(t time.Time) string {
	return t.Format("02/01/2006")
}

func formatDocumentNumber(n int) string {
	return fmt.Sprintf("001-001-%09d", n)
}
