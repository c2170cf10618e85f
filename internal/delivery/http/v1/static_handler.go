package v1

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"portfolio-backend/internal/delivery/http/response"

	"github.com/gin-gonic/gin"
)

// StaticHandler serves files of the portfolio site from dir. Unknown paths,
// dotfiles such as .env or .git, anything under /api and non-GET requests get
// a JSON 404.
func StaticHandler(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		urlPath := c.Request.URL.Path
		readOnly := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead

		if dir == "" || !readOnly || urlPath == "/api" || strings.HasPrefix(urlPath, "/api/") {
			notFound(c)
			return
		}

		// path.Clean on a rooted path cannot climb above dir
		cleaned := path.Clean("/" + urlPath)
		if hasDotSegment(cleaned) {
			notFound(c)
			return
		}
		name := filepath.Join(dir, filepath.FromSlash(cleaned))

		info, err := os.Stat(name)
		if err == nil && info.IsDir() {
			name = filepath.Join(name, "index.html")
			info, err = os.Stat(name)
		}
		if err != nil || info.IsDir() {
			notFound(c)
			return
		}

		c.File(name)
	}
}

// hasDotSegment reports whether any element of a cleaned URL path is hidden.
func hasDotSegment(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func notFound(c *gin.Context) {
	response.Error(c, http.StatusNotFound, "Endpoint not found", nil)
}
