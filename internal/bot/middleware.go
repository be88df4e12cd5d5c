package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "ghrelay/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("cmd", req.Command),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.Int64("chat_id", req.Msg.ChatID),
				logx.Int64("from_id", req.Msg.FromID),
				logx.String("cmd", req.Command),
				logx.Duration("dur", d),
			}
			if err != nil {
				log.Warn("command failed", append(fields, logx.Err(err))...)
			} else {
				// Keep INFO useful: short successful requests go to DEBUG.
				if d >= 750*time.Millisecond {
					log.Info("command ok", fields...)
				} else {
					log.Debug("command ok", fields...)
				}
			}
			return err
		}
	}
}
