package main

import (
	"time"

	"go-lunos/logger"
)

func loopSafely(f func()) {
	defer func() {
		if v := recover(); v != nil {
			logger.Get(logger.InfoLevel).Errorw("panic in loop, restarting", "panic", v)
			time.Sleep(time.Second)
			go loopSafely(f)
		}
	}()

	for {
		f()
	}
}
