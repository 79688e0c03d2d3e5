package fetcher

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/sells-group/stockleads/internal/config"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockStatus     BlockType = "status"
	BlockCloudflare BlockType = "cloudflare"
	BlockMarker     BlockType = "marker"
	BlockShortBody  BlockType = "short_body"
)

// BlockDetector recognizes anti-bot responses. Thresholds and markers come
// from configuration.
type BlockDetector struct {
	markers     []string
	minBody     int
	scanBytes   int
	statusCodes map[int]bool
}

// NewBlockDetector creates a detector from cfg, filling unset values with
// the package defaults.
func NewBlockDetector(cfg config.BlockConfig) *BlockDetector {
	markers := cfg.Markers
	if len(markers) == 0 {
		markers = config.DefaultBlockMarkers
	}
	lower := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lower = append(lower, m)
		}
	}
	codes := cfg.StatusCodes
	if len(codes) == 0 {
		codes = []int{http.StatusForbidden, http.StatusTooManyRequests}
	}
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	scan := cfg.MarkerScanBytes
	if scan <= 0 {
		scan = 10000
	}
	return &BlockDetector{
		markers:     lower,
		minBody:     cfg.MinBodyBytes,
		scanBytes:   scan,
		statusCodes: set,
	}
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// Detect checks a response for signs of blocking. statusCode 0 and a nil
// header mean the content came from a browser render. Empty bodies are not
// blocks; the caller reports them as EMPTY. Error responses are judged by
// status and headers only, so a short 5xx page stays a transient failure.
func (d *BlockDetector) Detect(statusCode int, header http.Header, body string) (BlockType, string) {
	if statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable {
		if header != nil && (header.Get("cf-ray") != "" || strings.EqualFold(header.Get("server"), "cloudflare")) {
			return BlockCloudflare, fmt.Sprintf("cloudflare %d", statusCode)
		}
	}
	if d.statusCodes[statusCode] {
		return BlockStatus, fmt.Sprintf("http %d", statusCode)
	}
	if statusCode >= http.StatusBadRequest {
		return BlockNone, ""
	}

	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return BlockNone, ""
	}

	lower := strings.ToLower(trimmed)
	title := ""
	if m := titleRe.FindStringSubmatch(lower); m != nil {
		title = m[1]
	}
	// Bodies larger than scanBytes are only checked by title.
	scan := len(lower) <= d.scanBytes
	for _, marker := range d.markers {
		if strings.Contains(title, marker) || (scan && strings.Contains(lower, marker)) {
			return BlockMarker, marker
		}
	}

	if d.minBody > 0 && len(trimmed) < d.minBody {
		return BlockShortBody, fmt.Sprintf("body %d bytes", len(trimmed))
	}
	return BlockNone, ""
}
