// Command mockiat serves a scripted fake recognizer for local development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/suara/internal/config"
	"github.com/satriahrh/suara/internal/iattest"
)

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	fragments := flag.String("fragments", "今天,天气", "comma separated fragments answered to audio frames")
	final := flag.String("final", "怎么样", "text of the terminal response")
	errorCode := flag.Int("error-code", 0, "answer the first frame with this error code")
	delay := flag.Duration("delay", 0, "wait before every reply")
	flag.Parse()

	logger, err := config.NewLogger(config.LoggingConfig{Level: "debug", Format: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	script := iattest.Script{
		Final:        *final,
		ErrorCode:    *errorCode,
		ErrorMessage: "scripted error",
		ReplyDelay:   *delay,
	}
	if *fragments != "" {
		script.Fragments = strings.Split(*fragments, ",")
	}

	mux := http.NewServeMux()
	mux.Handle(iattest.Path, iattest.NewHandler(script, logger))
	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		logger.Info("Fake recognizer listening",
			zap.String("address", *addr),
			zap.String("path", iattest.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Fake recognizer failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Fake recognizer forced to shutdown", zap.Error(err))
	}
}
