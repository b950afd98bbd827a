package middlewares

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

type compressingResponseWriter struct {
	io.Writer
	http.ResponseWriter
	wroteHeader bool
}

func (w *compressingResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.Header().Add("Vary", "Accept-Encoding")
	// The content-length after compression is unknown
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(code)
}

func (w *compressingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.Writer.Write(b)
}

// MakeCompressionMiddleware compresses responses with gzip, or deflate when the
// client does not accept gzip.
func MakeCompressionMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acceptEncoding := r.Header.Get("Accept-Encoding")
		if w.Header().Get("Content-Encoding") != "" {
			h.ServeHTTP(w, r)
			return
		}
		switch {
		case strings.Contains(acceptEncoding, "gzip"):
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			defer gz.Close()
			h.ServeHTTP(&compressingResponseWriter{Writer: gz, ResponseWriter: w}, r)
		case strings.Contains(acceptEncoding, "deflate"):
			fw, err := flate.NewWriter(w, flate.DefaultCompression)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Encoding", "deflate")
			defer fw.Close()
			h.ServeHTTP(&compressingResponseWriter{Writer: fw, ResponseWriter: w}, r)
		default:
			h.ServeHTTP(w, r)
		}
	})
}
