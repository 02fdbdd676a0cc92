package fetcher

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// httpStatuser 携带 HTTP 状态码的错误（如 client.StatusError）。
type httpStatuser interface{ HTTPStatus() int }

// httpStatusOf 提取错误链上的 HTTP 状态码。
func httpStatusOf(err error) (int, bool) {
	var se httpStatuser
	if errors.As(err, &se) {
		return se.HTTPStatus(), true
	}
	return 0, false
}

// isTimeout 判定超时类失败（含 ctx 截止与 net.Error 超时）。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isConnError 判定连接类失败（拨号被拒、连接被重置等）。
// 注意：先于本函数判定超时，*net.OpError 也可能带超时语义。
func isConnError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
