/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
)

const homeBody = `<h1>Signull</h1>
<p>One player picks a secret word. Everyone else works together to reveal it,
one letter at a time, by sending <em>signulls</em>: a word that starts with the
revealed prefix and a clue for it. Enough guessers connecting on the word
reveals the next letter, unless the setter intercepts it first.</p>
<p><a href="%[1]s/signull">Open a new room</a></p>
<p>From a terminal: <code>signull play &lt;room url&gt; --name you</code></p>
<h2>Commands</h2>
<pre>
join &lt;name&gt;                 start
setword &lt;word&gt;              signull &lt;word&gt; &lt;clue&gt;
connect &lt;id&gt; &lt;guess&gt;        intercept &lt;id&gt; &lt;guess&gt;
guess &lt;word&gt;                volunteer
setter &lt;player&gt;             set &lt;key&gt; &lt;value&gt;
reset    end    lobby       status   players   signulls
</pre>`

func serveHomePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		body := newPage("Signull", fmt.Sprintf(homeBody, html.EscapeString(cfg.prefix)))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(body))
	}
}

func serveHealthCheck(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /signull/`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}

func registerHome(cfg *Config, path string, mux *httprouter.Router) {
	mux.GET(path, serveHomePage(cfg))
}
