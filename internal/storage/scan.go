package storage

import (
	"errors"
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

var ErrMaliciousFile = errors.New("malicious file detected")

// Scanner 在上传前检查文件内容。
type Scanner interface {
	Scan(r io.Reader) error
}

// ClamdScanner 通过 clamd 的 INSTREAM 扫描文件。
type ClamdScanner struct {
	addr string
}

// NewScanner 地址为空时返回 nil，调用方据此跳过扫描。
func NewScanner(addr string) Scanner {
	if addr == "" {
		return nil
	}
	return &ClamdScanner{addr: addr}
}

// Scan 任一结果非 OK 即视为恶意文件。
func (s *ClamdScanner) Scan(r io.Reader) error {
	client := clamd.NewClamd(s.addr)

	abortChan := make(chan bool)
	defer close(abortChan)

	results, err := client.ScanStream(r, abortChan)
	if err != nil {
		return fmt.Errorf("scan file: %w", err)
	}

	var found error
	for result := range results {
		switch result.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			found = fmt.Errorf("%w: %s", ErrMaliciousFile, result.Description)
		default:
			if found == nil {
				found = fmt.Errorf("scan file: %s", result.Status)
			}
		}
	}
	return found
}
