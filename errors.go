/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prayush21/connect-a-fun-social-game-sub002/games/signull"
)

func setupLogging(cfg *Config) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: logDate,
	}).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Debug().Msgf(format, args...)
}

// ErrorMessage tells one client why its command was rejected.
type ErrorMessage struct {
	Type    string `json:"type"`         // "error"
	ID      string `json:"id,omitempty"` // command id, if the client sent one
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func newErrorMessage(id string, err error) ErrorMessage {
	msg := ErrorMessage{
		Type:    "error",
		ID:      id,
		Kind:    "internal",
		Message: "something went wrong",
	}

	var e *signull.Error
	if errors.As(err, &e) {
		msg.Kind = string(e.Kind)
		msg.Code = e.Code
		msg.Message = e.Msg
	}
	return msg
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body{height:100%;margin:0;font-family:system-ui,sans-serif;background:#111;color:#eee;}`)
	htmlBody.WriteString(`main{max-width:40rem;margin:0 auto;padding:2rem;}a{color:#7cf;}code{background:#222;padding:0 .25rem;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><main>%s</main></body></html>", body))

	return htmlBody.String()
}
