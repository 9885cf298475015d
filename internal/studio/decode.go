package studio

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"syscall"
	"time"

	"github.com/chai2010/webp"
)

// DefaultMaxImageBytes bounds uploads and fetched images
const DefaultMaxImageBytes = 20 << 20

// SourceImage is a decoded working logo
type SourceImage struct {
	Data   []byte
	MIME   string
	Image  image.Image
	Width  int
	Height int
}

// DataURL returns the image as a base64 data URL
func (s *SourceImage) DataURL() string {
	return "data:" + s.MIME + ";base64," + base64.StdEncoding.EncodeToString(s.Data)
}

// ImageDecoder turns image references into decoded images
type ImageDecoder interface {
	// Decode accepts a data URL, raw base64 or an http(s) URL
	Decode(ctx context.Context, ref string) (*SourceImage, error)
	DecodeBytes(data []byte) (*SourceImage, error)
}

// Decoder is the default ImageDecoder
type Decoder struct {
	client   *http.Client
	maxBytes int64
}

// ErrPrivateAddress is returned when an image URL resolves to a loopback,
// link-local, private or otherwise non-public address.
var ErrPrivateAddress = errors.New("refusing to fetch from a non-public address")

// NewDecoder creates a decoder. A nil client uses PublicHTTPClient with a
// 30s timeout.
func NewDecoder(client *http.Client) *Decoder {
	if client == nil {
		client = PublicHTTPClient(30 * time.Second)
	}
	return &Decoder{client: client, maxBytes: DefaultMaxImageBytes}
}

// PublicHTTPClient returns a client that only connects to public unicast
// addresses. The check runs on the dialed address, so redirects and DNS
// answers cannot reach internal hosts.
func PublicHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: rejectNonPublic,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: timeout, Transport: transport}
}

func rejectNonPublic(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, address)
	}
	if !isPublicAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, address)
	}
	return nil
}

func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		addr.IsGlobalUnicast() &&
		!addr.IsPrivate() &&
		!addr.IsLoopback() &&
		!addr.IsLinkLocalUnicast() &&
		!sharedAddressSpace.Contains(addr)
}

// carrier grade NAT range, not covered by IsPrivate
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// Decode loads the referenced image
func (d *Decoder) Decode(ctx context.Context, ref string) (*SourceImage, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &DecodeError{Err: fmt.Errorf("empty image reference")}
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		data, err := d.fetch(ctx, ref)
		if err != nil {
			return nil, &DecodeError{Err: err}
		}
		return d.DecodeBytes(data)
	}

	payload := ref
	if strings.HasPrefix(ref, "data:") {
		idx := strings.Index(ref, ",")
		if idx < 0 || !strings.Contains(ref[:idx], ";base64") {
			return nil, &DecodeError{Err: fmt.Errorf("unsupported data URL")}
		}
		payload = ref[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("invalid base64 payload: %w", err)}
	}
	if int64(len(data)) > d.maxBytes {
		return nil, &DecodeError{Err: fmt.Errorf("image exceeds %d bytes", d.maxBytes)}
	}
	return d.DecodeBytes(data)
}

// DecodeBytes decodes PNG, JPEG, GIF or WebP data
func (d *Decoder) DecodeBytes(data []byte) (*SourceImage, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("empty image data")}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// webp is not always registered with the image package
		wimg, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, &DecodeError{Err: fmt.Errorf("unsupported image format: %w", err)}
		}
		img, format = wimg, "webp"
	}

	b := img.Bounds()
	return &SourceImage{
		Data:   data,
		MIME:   "image/" + format,
		Image:  img,
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}

func (d *Decoder) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", d.maxBytes)
	}
	return data, nil
}
