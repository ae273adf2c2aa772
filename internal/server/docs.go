package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// registerDocs registers the OpenAPI document and a ReDoc page.
func registerDocs(e *echo.Echo, specPath string) {
	if specPath == "" {
		specPath = "docs/openapi.yaml"
	}
	e.File("/openapi.yaml", specPath)

	e.GET("/docs", func(c echo.Context) error {
		html := `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Tweetsense API Docs</title>
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <style>body{margin:0;padding:0;} .redoc-wrap{height:100vh;}</style>
  </head>
  <body>
    <div id="redoc-container" class="redoc-wrap"></div>
    <script src="https://cdn.jsdelivr.net/npm/redoc/bundles/redoc.standalone.js"></script>
    <script>
      Redoc.init('/openapi.yaml', {}, document.getElementById('redoc-container'))
    </script>
  </body>
  </html>`
		return c.HTML(http.StatusOK, html)
	})
}
