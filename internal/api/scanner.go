package api

import (
	"errors"
	"fmt"
	"io"

	"github.com/dutchcoders/go-clamd"
)

// errMalicious 表示 clamd 判定文件含恶意内容。
var errMalicious = errors.New("malicious file detected")

// malwareScanner 在文件写入对象存储前进行扫描。
type malwareScanner interface {
	Scan(r io.Reader) error
}

type clamdScanner struct {
	addr string
}

func newClamdScanner(addr string) *clamdScanner {
	return &clamdScanner{addr: addr}
}

func (s *clamdScanner) Scan(r io.Reader) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := clamd.NewClamd(s.addr).ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("scan stream: %w", err)
	}
	var found error
	for result := range results {
		switch result.Status {
		case clamd.RES_OK:
		case clamd.RES_FOUND:
			found = fmt.Errorf("%w: %s", errMalicious, result.Description)
		default:
			if found == nil {
				found = fmt.Errorf("clamd status %s: %s", result.Status, result.Description)
			}
		}
	}
	return found
}
