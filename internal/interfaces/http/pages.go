package http

import (
	"net/http"
	"os"
)

// HandleHealth returns a simple health check response.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// StaticHandler serves the frontend bundle from dir, with index.html as the
// directory default. It returns nil when dir does not exist.
func StaticHandler(dir string) http.Handler {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil
	}
	return http.FileServer(http.Dir(dir))
}
